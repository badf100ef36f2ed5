package property

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/RichardoC/realty-assistant/internal/db"
	"github.com/RichardoC/realty-assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc *Service
	db  *db.Database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(context.Background(), config.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:  4,
		MaxIdleConns:  2,
		BusyTimeoutMS: 5000,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	svc := New(database, config.RealEstateConfig{
		LicenseNumber:     "RE-123456",
		DefaultMarketArea: "Austin",
		BrokerageName:     "Lakeside Realty",
	}, nil)
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, db: database}
}

func (f *fixture) agent(t *testing.T, id, name string, ytd float64, featured, active bool) {
	t.Helper()
	_, err := f.db.ExecuteQuery(context.Background(), "seed_agent",
		`INSERT INTO agents (id, name, email, phone, license_number, ytd_sales, rating, is_featured, is_active)
		VALUES (@id, @name, @email, '555-0100', 'LIC-1', @ytd, 4.8, @featured, @active)`,
		db.Params{"id": id, "name": name, "email": id + "@example.com", "ytd": ytd, "featured": featured, "active": active}, nil)
	require.NoError(t, err)
}

type listing struct {
	id, city, kind, agent string
	price                 float64
	beds, sqft, dom       int
	baths                 float64
	status                models.PropertyStatus
	listed                time.Time
	sold                  *time.Time
}

func (f *fixture) property(t *testing.T, l listing) {
	t.Helper()
	params := db.Params{
		"id": l.id, "city": l.city, "kind": l.kind, "price": l.price, "beds": l.beds,
		"baths": l.baths, "sqft": l.sqft, "status": string(l.status), "listed": l.listed,
		"dom": l.dom, "agent": nil, "sold": nil,
	}
	if l.agent != "" {
		params["agent"] = l.agent
	}
	if l.sold != nil {
		params["sold"] = *l.sold
	}
	_, err := f.db.ExecuteQuery(context.Background(), "seed_property",
		`INSERT INTO properties (id, address, city, state, zip_code, property_type, price, bedrooms, bathrooms,
			square_feet, status, listing_date, sold_date, days_on_market, agent_id)
		VALUES (@id, '1 Main St', @city, 'TX', '78701', @kind, @price, @beds, @baths,
			@sqft, @status, @listed, @sold, @dom, @agent)`, params, nil)
	require.NoError(t, err)
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.agent(t, "a1", "Alice", 2_000_000, true, true)
	f.agent(t, "a2", "Bob", 5_000_000, true, true)
	f.agent(t, "a3", "Carol", 9_000_000, false, true)
	f.agent(t, "a4", "Dan", 7_000_000, true, false)

	sold := testNow.AddDate(0, 0, -10)
	for _, l := range []listing{
		{id: "p1", city: "Austin", kind: "single_family", agent: "a1", price: 450000, beds: 3, baths: 2, sqft: 1800, dom: 10, status: models.PropertyActive, listed: testNow.AddDate(0, 0, -10)},
		{id: "p2", city: "Austin", kind: "single_family", agent: "a2", price: 650000, beds: 4, baths: 3, sqft: 2600, dom: 20, status: models.PropertyPending, listed: testNow.AddDate(0, 0, -5)},
		{id: "p3", city: "Austin", kind: "single_family", agent: "a1", price: 550000, beds: 3, baths: 2.5, sqft: 2100, dom: 30, status: models.PropertySold, listed: testNow.AddDate(0, -2, 0), sold: &sold},
		{id: "p4", city: "Austin", kind: "condo", price: 300000, beds: 2, baths: 1, sqft: 900, dom: 40, status: models.PropertyActive, listed: testNow.AddDate(0, 0, -1)},
		{id: "p5", city: "Dallas", kind: "single_family", agent: "a2", price: 500000, beds: 3, baths: 2, sqft: 2000, dom: 5, status: models.PropertyWithdrawn, listed: testNow.AddDate(0, 0, -3)},
		{id: "p6", city: "Austin", kind: "single_family", agent: "a2", price: 999999, beds: 5, baths: 4, sqft: 4000, dom: 200, status: models.PropertySold, listed: testNow.AddDate(-1, 0, 0)},
	} {
		f.property(t, l)
	}
}

func ids(props []*models.Property) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.ID)
	}
	return out
}

func TestSearchProperties(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	res, err := f.svc.SearchProperties(ctx, SearchCriteria{MinPrice: 0, MaxPrice: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, []string{"p4", "p2", "p1"}, ids(res.Properties), "active and pending only, newest first")
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 20, res.Criteria.Limit)
	assert.Equal(t, testNow, res.Timestamp)
	assert.Equal(t, "Bob", res.Properties[1].AgentName)
	assert.Empty(t, res.Properties[0].AgentID)

	res, err = f.svc.SearchProperties(ctx, SearchCriteria{
		Location: "aus", PropertyType: "single_family", MinPrice: 400000, MaxPrice: 700000, MinBedrooms: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(res.Properties))

	res, err = f.svc.SearchProperties(ctx, SearchCriteria{MaxPrice: 1_000_000, MinBathrooms: 2, MaxSquareFeet: 2000})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(res.Properties))

	res, err = f.svc.SearchProperties(ctx, SearchCriteria{MaxPrice: 1_000_000, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(res.Properties))
}

func TestSearchProperties_LocationIsLiteral(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	for _, loc := range []string{"_", "%", "a_s", `\`} {
		res, err := f.svc.SearchProperties(context.Background(), SearchCriteria{Location: loc, MaxPrice: 1_000_000})
		require.NoError(t, err)
		assert.Empty(t, res.Properties, "location %q", loc)
	}
}

func TestSearchProperties_Validation(t *testing.T) {
	f := newFixture(t)
	for name, c := range map[string]SearchCriteria{
		"missing max":    {MinPrice: 100},
		"negative min":   {MinPrice: -1, MaxPrice: 100},
		"inverted price": {MinPrice: 500, MaxPrice: 100},
		"inverted sqft":  {MaxPrice: 100, MinSquareFeet: 3000, MaxSquareFeet: 1000},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SearchProperties(context.Background(), c)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestGetMarketAnalysis(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	ma, err := f.svc.GetMarketAnalysis(context.Background(), "austin", "single_family")
	require.NoError(t, err)
	assert.Equal(t, 3, ma.TotalListings, "p6 is outside the six month window")
	assert.Equal(t, 550000.0, ma.AveragePrice)
	assert.Equal(t, 450000.0, ma.MinPrice)
	assert.Equal(t, 650000.0, ma.MaxPrice)
	assert.Equal(t, 20.0, ma.AvgDaysOnMarket)
	assert.Equal(t, 1, ma.SoldCount)
	assert.Equal(t, 1, ma.ActiveCount)
	assert.InDelta(t, 33.33, ma.AbsorptionRatePct, 0.01)
	assert.Equal(t, testNow.AddDate(0, -6, 0), ma.PeriodStart)
}

func TestGetMarketAnalysis_NoRows(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	ma, err := f.svc.GetMarketAnalysis(context.Background(), "Houston", "condo")
	assert.Nil(t, ma)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.GetMarketAnalysis(context.Background(), "", "condo")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAbsorptionRate(t *testing.T) {
	assert.Equal(t, 0.0, absorptionRate(0, 0))
	assert.Equal(t, 50.0, absorptionRate(2, 4))
	assert.Equal(t, 100.0, absorptionRate(3, 3))
}

func showingRequest(propertyID string) ShowingRequest {
	return ShowingRequest{
		PropertyID:    propertyID,
		ClientName:    "Jane Buyer",
		ClientEmail:   "jane@example.com",
		PreferredDate: testNow.AddDate(0, 0, 3),
		TimeSlot:      "10:00-11:00",
	}
}

func TestScheduleShowing(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	showing, err := f.svc.ScheduleShowing(ctx, showingRequest("p2"))
	require.NoError(t, err)
	assert.Equal(t, models.ShowingRequested, showing.Status)
	assert.Equal(t, "a2", showing.AgentID)
	assert.Equal(t, testNow, showing.CreatedAt)

	var (
		count   int
		agentID string
		status  string
	)
	_, err = f.db.ExecuteQuery(ctx, "read_showing",
		`SELECT COUNT(*), COALESCE(MAX(agent_id), ''), COALESCE(MAX(status), '') FROM showings WHERE property_id = @id`,
		db.Params{"id": "p2"}, func(rows *sql.Rows) error { return rows.Scan(&count, &agentID, &status) })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "a2", agentID)
	assert.Equal(t, "requested", status)

	showing, err = f.svc.ScheduleShowing(ctx, showingRequest("p4"))
	require.NoError(t, err)
	assert.Empty(t, showing.AgentID, "unassigned listing")
}

func TestScheduleShowing_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.svc.ScheduleShowing(ctx, showingRequest("missing"))
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.ScheduleShowing(ctx, showingRequest("p3"))
	assert.True(t, apperr.Is(err, apperr.KindValidation), "sold listings cannot be shown")

	bad := showingRequest("p1")
	bad.ClientEmail = "not-an-email"
	bad.TimeSlot = ""
	_, err = f.svc.ScheduleShowing(ctx, bad)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Len(t, apperr.DetailsOf(err), 2)

	st, err := f.svc.GetServiceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ShowingsThisWeek)
}

func TestGetAgentInfo(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	roster, err := f.svc.GetAgentInfo(ctx, "")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Bob", roster[0].Name)
	assert.Equal(t, "Alice", roster[1].Name)
	assert.True(t, roster[0].Featured)

	one, err := f.svc.GetAgentInfo(ctx, "a3")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Carol", one[0].Name)
	assert.False(t, one[0].Featured)

	_, err = f.svc.GetAgentInfo(ctx, "nobody")
	assert.True(t, apperr.IsNotFound(err))
}

func TestGetServiceStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.svc.ScheduleShowing(ctx, showingRequest("p1"))
	require.NoError(t, err)

	st, err := f.svc.GetServiceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveListings)
	assert.Equal(t, 1, st.SoldLastMonth)
	assert.Equal(t, 1, st.ShowingsThisWeek)
	assert.Equal(t, 3, st.ActiveAgents)
	assert.Equal(t, 375000.0, st.AvgListingPrice)
	assert.Equal(t, "RE-123456", st.LicenseNumber)
	assert.Equal(t, "Austin", st.DefaultMarketArea)
}
