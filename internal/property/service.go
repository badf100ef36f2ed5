// Package property answers listing, market and agent queries and books
// showings. It shares only the persistence gateway with the rest of the
// service.
package property

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/db"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcScheduleShowing checks the property and inserts the showing in one
// transaction.
const ProcScheduleShowing = "schedule_showing"

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	analysisMonths     = 6
)

// Store is what the service needs from the persistence gateway.
type Store interface {
	db.Executor
	ExecuteProcedure(ctx context.Context, name string, params db.Params) (db.Result, error)
	RegisterProcedure(name string, proc db.Procedure)
}

type Service struct {
	store  Store
	cfg    config.RealEstateConfig
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, cfg config.RealEstateConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("property"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	store.RegisterProcedure(ProcScheduleShowing, scheduleShowing)
	return s
}

// SearchCriteria filters a listing search. MinPrice and MaxPrice are required;
// zero values leave the other filters unset.
type SearchCriteria struct {
	Location      string  `json:"location,omitempty"`
	PropertyType  string  `json:"propertyType,omitempty"`
	MinPrice      float64 `json:"minPrice"`
	MaxPrice      float64 `json:"maxPrice"`
	MinBedrooms   int     `json:"minBedrooms,omitempty"`
	MinBathrooms  float64 `json:"minBathrooms,omitempty"`
	MinSquareFeet int     `json:"minSquareFeet,omitempty"`
	MaxSquareFeet int     `json:"maxSquareFeet,omitempty"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
}

func (c *SearchCriteria) normalize() error {
	var errs []string
	if c.MaxPrice <= 0 {
		errs = append(errs, "maxPrice is required and must be positive")
	}
	if c.MinPrice < 0 {
		errs = append(errs, "minPrice must not be negative")
	}
	if c.MaxPrice > 0 && c.MinPrice > c.MaxPrice {
		errs = append(errs, "minPrice must not exceed maxPrice")
	}
	if c.MinSquareFeet > 0 && c.MaxSquareFeet > 0 && c.MinSquareFeet > c.MaxSquareFeet {
		errs = append(errs, "minSquareFeet must not exceed maxSquareFeet")
	}
	if len(errs) > 0 {
		return apperr.Validation("invalid search criteria", errs...)
	}

	if c.Limit <= 0 {
		c.Limit = defaultSearchLimit
	}
	if c.Limit > maxSearchLimit {
		c.Limit = maxSearchLimit
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
	c.Location = strings.TrimSpace(c.Location)
	return nil
}

// SearchResult is a page of listings with the criteria that produced it.
type SearchResult struct {
	Properties []*models.Property `json:"properties"`
	Count      int                `json:"count"`
	Criteria   SearchCriteria     `json:"criteria"`
	Timestamp  time.Time          `json:"timestamp"`
}

const propertyColumns = `p.id, p.mls_number, p.address, p.city, p.state, p.zip_code, p.property_type,
	p.price, p.bedrooms, p.bathrooms, p.square_feet, p.status, p.listing_date, p.days_on_market,
	p.description, COALESCE(p.agent_id, ''), COALESCE(a.name, '')`

func scanProperty(rows *sql.Rows) (*models.Property, error) {
	var p models.Property
	err := rows.Scan(&p.ID, &p.MLSNumber, &p.Address, &p.City, &p.State, &p.ZipCode, &p.PropertyType,
		&p.Price, &p.Bedrooms, &p.Bathrooms, &p.SquareFeet, &p.Status, &p.ListingDate, &p.DaysOnMarket,
		&p.Description, &p.AgentID, &p.AgentName)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchProperties returns active and pending listings matching criteria,
// newest listing first.
func (s *Service) SearchProperties(ctx context.Context, criteria SearchCriteria) (*SearchResult, error) {
	if err := criteria.normalize(); err != nil {
		return nil, err
	}

	where := []string{
		`p.status IN ('active', 'pending')`,
		`p.price BETWEEN @min_price AND @max_price`,
	}
	params := db.Params{
		"min_price": criteria.MinPrice,
		"max_price": criteria.MaxPrice,
		"limit":     criteria.Limit,
		"offset":    criteria.Offset,
	}
	if criteria.Location != "" {
		where = append(where, `(p.city LIKE @location ESCAPE '\' OR p.state = @location_exact OR p.zip_code = @location_exact)`)
		params["location"] = "%" + likeEscaper.Replace(criteria.Location) + "%"
		params["location_exact"] = criteria.Location
	}
	if criteria.PropertyType != "" {
		where = append(where, `p.property_type = @property_type`)
		params["property_type"] = criteria.PropertyType
	}
	if criteria.MinBedrooms > 0 {
		where = append(where, `p.bedrooms >= @min_bedrooms`)
		params["min_bedrooms"] = criteria.MinBedrooms
	}
	if criteria.MinBathrooms > 0 {
		where = append(where, `p.bathrooms >= @min_bathrooms`)
		params["min_bathrooms"] = criteria.MinBathrooms
	}
	if criteria.MinSquareFeet > 0 {
		where = append(where, `p.square_feet >= @min_sqft`)
		params["min_sqft"] = criteria.MinSquareFeet
	}
	if criteria.MaxSquareFeet > 0 {
		where = append(where, `p.square_feet <= @max_sqft`)
		params["max_sqft"] = criteria.MaxSquareFeet
	}

	props := []*models.Property{}
	_, err := s.store.ExecuteQuery(ctx, "search_properties",
		`SELECT `+propertyColumns+`
		FROM properties p LEFT JOIN agents a ON a.id = p.agent_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY p.listing_date DESC, p.id
		LIMIT @limit OFFSET @offset`,
		params,
		func(rows *sql.Rows) error {
			p, err := scanProperty(rows)
			if err != nil {
				return err
			}
			props = append(props, p)
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("property search", zap.Int("results", len(props)), zap.String("location", criteria.Location))
	return &SearchResult{Properties: props, Count: len(props), Criteria: criteria, Timestamp: s.now()}, nil
}

// MarketAnalysis aggregates listings for one location and property type over
// the trailing six months.
type MarketAnalysis struct {
	Location          string    `json:"location"`
	PropertyType      string    `json:"propertyType"`
	TotalListings     int       `json:"totalListings"`
	AveragePrice      float64   `json:"averagePrice"`
	MinPrice          float64   `json:"minPrice"`
	MaxPrice          float64   `json:"maxPrice"`
	AvgDaysOnMarket   float64   `json:"averageDaysOnMarket"`
	SoldCount         int       `json:"soldCount"`
	ActiveCount       int       `json:"activeCount"`
	AbsorptionRatePct float64   `json:"absorptionRate"`
	PeriodStart       time.Time `json:"periodStart"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// GetMarketAnalysis fails with a not-found error when nothing matches.
func (s *Service) GetMarketAnalysis(ctx context.Context, location, propertyType string) (*MarketAnalysis, error) {
	location = strings.TrimSpace(location)
	propertyType = strings.TrimSpace(propertyType)
	if location == "" || propertyType == "" {
		return nil, apperr.Validation("location and propertyType are required")
	}

	now := s.now()
	ma := &MarketAnalysis{
		Location:     location,
		PropertyType: propertyType,
		PeriodStart:  now.AddDate(0, -analysisMonths, 0),
		GeneratedAt:  now,
	}
	_, err := s.store.ExecuteQuery(ctx, "market_analysis",
		`SELECT
			COUNT(*),
			COALESCE(AVG(price), 0),
			COALESCE(MIN(price), 0),
			COALESCE(MAX(price), 0),
			COALESCE(AVG(days_on_market), 0),
			COALESCE(SUM(CASE WHEN status = 'sold' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0)
		FROM properties
		WHERE city = @location COLLATE NOCASE
			AND property_type = @property_type
			AND listing_date >= @since`,
		db.Params{"location": location, "property_type": propertyType, "since": ma.PeriodStart},
		func(rows *sql.Rows) error {
			return rows.Scan(&ma.TotalListings, &ma.AveragePrice, &ma.MinPrice, &ma.MaxPrice,
				&ma.AvgDaysOnMarket, &ma.SoldCount, &ma.ActiveCount)
		})
	if err != nil {
		return nil, err
	}
	if ma.TotalListings == 0 {
		return nil, apperr.NotFound("market data", location+"/"+propertyType)
	}
	ma.AbsorptionRatePct = absorptionRate(ma.SoldCount, ma.TotalListings)
	return ma, nil
}

// absorptionRate is sold/total as a percentage, 0 when total is 0.
func absorptionRate(sold, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(sold) / float64(total) * 100
}

// ShowingRequest books a viewing of one property.
type ShowingRequest struct {
	PropertyID    string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	PreferredDate time.Time
	TimeSlot      string
	Notes         string
}

func (r ShowingRequest) validate() error {
	var errs []string
	if strings.TrimSpace(r.ClientName) == "" {
		errs = append(errs, "clientName is required")
	}
	if _, err := mail.ParseAddress(r.ClientEmail); err != nil {
		errs = append(errs, "clientEmail must be a valid email address")
	}
	if r.PreferredDate.IsZero() {
		errs = append(errs, "preferredDate is required")
	}
	if strings.TrimSpace(r.TimeSlot) == "" {
		errs = append(errs, "timeSlot is required")
	}
	if len(errs) > 0 {
		return apperr.Validation("invalid showing request", errs...)
	}
	return nil
}

// scheduleShowing is registered as ProcScheduleShowing. The agent is copied
// from the property row read in the same transaction and reported as
// Out["agent_id"].
func scheduleShowing(ctx context.Context, tx db.Executor, p db.Params) (db.Result, error) {
	var (
		found   bool
		status  models.PropertyStatus
		agentID sql.NullString
	)
	_, err := tx.ExecuteQuery(ctx, "schedule_showing.property",
		`SELECT status, agent_id FROM properties WHERE id = @property_id`, p,
		func(rows *sql.Rows) error {
			found = true
			return rows.Scan(&status, &agentID)
		})
	if err != nil {
		return db.Result{}, err
	}
	id, _ := p["property_id"].(string)
	if !found {
		return db.Result{}, apperr.NotFound("property", id)
	}
	if !status.Showable() {
		return db.Result{}, apperr.Validation("property is not available for showings",
			fmt.Sprintf("property %s has status %s", id, status))
	}

	insert := make(db.Params, len(p)+1)
	for k, v := range p {
		insert[k] = v
	}
	insert["agent_id"] = agentID
	res, err := tx.ExecuteQuery(ctx, "schedule_showing.insert",
		`INSERT INTO showings (id, property_id, agent_id, client_name, client_email, client_phone,
			preferred_date, time_slot, status, notes, created_at)
		VALUES (@id, @property_id, @agent_id, @client_name, @client_email, @client_phone,
			@preferred_date, @time_slot, @status, @notes, @created_at)`, insert, nil)
	if err != nil {
		return db.Result{}, err
	}
	res.Out = db.Params{"agent_id": agentID.String}
	return res, nil
}

// ScheduleShowing records a requested showing for an active or pending
// property, assigned to the property's listing agent.
func (s *Service) ScheduleShowing(ctx context.Context, req ShowingRequest) (*models.Showing, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	showing := &models.Showing{
		ID:            uuid.NewString(),
		PropertyID:    req.PropertyID,
		ClientName:    strings.TrimSpace(req.ClientName),
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		PreferredDate: req.PreferredDate.UTC(),
		TimeSlot:      req.TimeSlot,
		Status:        models.ShowingRequested,
		Notes:         req.Notes,
		CreatedAt:     s.now(),
	}
	params := db.Params{
		"id":             showing.ID,
		"property_id":    showing.PropertyID,
		"client_name":    showing.ClientName,
		"client_email":   showing.ClientEmail,
		"client_phone":   showing.ClientPhone,
		"preferred_date": showing.PreferredDate,
		"time_slot":      showing.TimeSlot,
		"status":         showing.Status,
		"notes":          showing.Notes,
		"created_at":     showing.CreatedAt,
	}
	res, err := s.store.ExecuteProcedure(ctx, ProcScheduleShowing, params)
	if err != nil {
		return nil, err
	}
	showing.AgentID, _ = res.Out["agent_id"].(string)

	s.logger.Info("showing scheduled",
		zap.String("showing_id", showing.ID),
		zap.String("property_id", showing.PropertyID),
		zap.String("agent_id", showing.AgentID))
	return showing, nil
}

const agentColumns = `id, name, email, phone, license_number, specialties, years_experience,
	ytd_sales, rating, is_featured, is_active, bio`

func scanAgent(rows *sql.Rows) (*models.Agent, error) {
	var a models.Agent
	err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.LicenseNumber, &a.Specialties,
		&a.YearsExperience, &a.YTDSales, &a.Rating, &a.Featured, &a.Active, &a.Bio)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgentInfo returns the single agent with agentID, or the featured roster
// ordered by year-to-date sales when agentID is empty.
func (s *Service) GetAgentInfo(ctx context.Context, agentID string) ([]*models.Agent, error) {
	stmt := `SELECT ` + agentColumns + ` FROM agents
		WHERE is_featured = 1 AND is_active = 1
		ORDER BY ytd_sales DESC, name`
	params := db.Params{}
	if agentID != "" {
		stmt = `SELECT ` + agentColumns + ` FROM agents WHERE id = @id`
		params["id"] = agentID
	}

	agents := []*models.Agent{}
	_, err := s.store.ExecuteQuery(ctx, "get_agent_info", stmt, params, func(rows *sql.Rows) error {
		a, err := scanAgent(rows)
		if err != nil {
			return err
		}
		agents = append(agents, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if agentID != "" && len(agents) == 0 {
		return nil, apperr.NotFound("agent", agentID)
	}
	return agents, nil
}

// Stats summarises listing activity together with the brokerage settings.
type Stats struct {
	ActiveListings    int       `json:"activeListings"`
	SoldLastMonth     int       `json:"soldLastMonth"`
	ShowingsThisWeek  int       `json:"showingsThisWeek"`
	ActiveAgents      int       `json:"activeAgents"`
	AvgListingPrice   float64   `json:"averageListingPrice"`
	LicenseNumber     string    `json:"licenseNumber"`
	DefaultMarketArea string    `json:"defaultMarketArea"`
	BrokerageName     string    `json:"brokerageName,omitempty"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

func (s *Service) GetServiceStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	st := &Stats{
		LicenseNumber:     s.cfg.LicenseNumber,
		DefaultMarketArea: s.cfg.DefaultMarketArea,
		BrokerageName:     s.cfg.BrokerageName,
		GeneratedAt:       now,
	}
	_, err := s.store.ExecuteQuery(ctx, "property_stats",
		`SELECT
			(SELECT COUNT(*) FROM properties WHERE status = 'active'),
			(SELECT COUNT(*) FROM properties WHERE status = 'sold' AND sold_date >= @month_ago),
			(SELECT COUNT(*) FROM showings WHERE created_at >= @week_ago),
			(SELECT COUNT(*) FROM agents WHERE is_active = 1),
			(SELECT COALESCE(AVG(price), 0) FROM properties WHERE status = 'active')`,
		db.Params{"month_ago": now.AddDate(0, -1, 0), "week_ago": now.AddDate(0, 0, -7)},
		func(rows *sql.Rows) error {
			return rows.Scan(&st.ActiveListings, &st.SoldLastMonth, &st.ShowingsThisWeek, &st.ActiveAgents, &st.AvgListingPrice)
		})
	if err != nil {
		return nil, err
	}
	return st, nil
}
