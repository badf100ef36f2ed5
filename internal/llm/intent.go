package llm

import "strings"

// Intent is the topic a user message was classified into. Each intent maps to
// exactly one canned response.
type Intent int

const (
	IntentGeneric Intent = iota
	IntentProperty
	IntentPricing
	IntentScheduling
	IntentAgentRequest
)

func (i Intent) String() string {
	switch i {
	case IntentProperty:
		return "property"
	case IntentPricing:
		return "pricing"
	case IntentScheduling:
		return "scheduling"
	case IntentAgentRequest:
		return "agent_request"
	default:
		return "generic"
	}
}

// keywords are checked in order; the first intent with a matching substring wins.
var keywords = []struct {
	intent Intent
	terms  []string
}{
	{IntentProperty, []string{"property", "house"}},
	{IntentPricing, []string{"price", "market"}},
	{IntentScheduling, []string{"schedule", "viewing"}},
	{IntentAgentRequest, []string{"agent", "realtor"}},
}

var responses = map[Intent]string{
	IntentProperty: "I'd be happy to help you find the right property. To narrow the search, " +
		"tell me your preferred location, budget range, number of bedrooms and bathrooms, and the " +
		"type of property you have in mind (single family home, condo, townhouse). I can then pull " +
		"current listings that match and highlight the ones worth a closer look.",
	IntentPricing: "Market conditions vary a lot by neighborhood and property type. I can prepare " +
		"a market analysis covering recent sale prices, average days on market and how quickly " +
		"homes are being absorbed in your area. Which location and property type should I look at?",
	IntentScheduling: "I can help you schedule a viewing. Please share the listing you're " +
		"interested in, a preferred date and a time slot (morning, afternoon or evening), along " +
		"with your name and the best email to reach you. The listing agent will confirm the " +
		"appointment.",
	IntentAgentRequest: "Our licensed agents know the local market well and are ready to help. " +
		"I can connect you with a featured agent or, if you already have someone in mind, look up " +
		"their contact details and specialties for you.",
	IntentGeneric: "Hello! I'm your real estate assistant. I can help you search for homes, " +
		"explain current market trends, schedule property viewings and connect you with a " +
		"licensed agent. What would you like to do today?",
}

// Classify maps a user message to an intent by case-insensitive substring
// matching. It is deterministic and keeps no state.
func Classify(message string) Intent {
	lower := strings.ToLower(message)
	for _, k := range keywords {
		for _, term := range k.terms {
			if strings.Contains(lower, term) {
				return k.intent
			}
		}
	}
	return IntentGeneric
}

// Response returns the canned paragraph for the intent.
func (i Intent) Response() string {
	if r, ok := responses[i]; ok {
		return r
	}
	return responses[IntentGeneric]
}
