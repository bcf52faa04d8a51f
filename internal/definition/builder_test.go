package definition

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/pitabwire/vitrine/internal/auth"
	"github.com/pitabwire/vitrine/internal/cache"
	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/metric"
	"github.com/pitabwire/vitrine/model"
)

var roleCapabilities = map[string]model.CapabilitySet{
	"viewer": {"orders:viewAny": true},
	"admin":  {"*": true},
}

var roleGate = auth.GateFunc(func(_ context.Context, user *model.RequestContext, ability string, subject any) (bool, error) {
	resource, _ := subject.(string)
	for _, role := range user.Roles {
		if roleCapabilities[role].Has(model.Ability(resource, ability)) {
			return true, nil
		}
	}
	return false, nil
})

func user(roles ...string) *model.Request {
	return model.NewRequest(&model.RequestContext{SubjectID: "u-" + roles[0], Roles: roles}, nil)
}

type built struct {
	*Result
	cards *card.Registry
	meta  *metadata.Manager
	logs  *observer.ObservedLogs
}

func buildTestdata(t *testing.T) built {
	t.Helper()
	def, err := NewLoader(false).LoadFile("testdata/sales/definition.yaml")
	if err != nil {
		t.Fatal(err)
	}
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.ErrorLevel)
	cards := card.NewRegistry()
	meta := metadata.NewManager(nil)
	res, err := NewBuilder(db, cards,
		WithGate(roleGate),
		WithMetadata(meta),
		WithAuthCache(cache.NewMemoryStore(0), 0),
		WithBadgeCache(cache.NewMemoryStore(0)),
		WithLogger(zap.New(core)),
	).Build([]model.DomainDefinition{def})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return built{Result: res, cards: cards, meta: meta, logs: logs}
}

func TestBuild_metricsRegistered(t *testing.T) {
	b := buildTestdata(t)
	for _, key := range []string{"new-orders", "orders-per-day", "latest-orders"} {
		if !b.cards.Has(key) {
			t.Errorf("metric %q not registered", key)
		}
	}

	c, err := b.cards.Make("new-orders")
	if err != nil {
		t.Fatal(err)
	}
	m := c.(metric.Metric)
	if m.CacheFor().Minutes() != 5 || m.Component() != "value-metric" {
		t.Errorf("new-orders = %v / %s", m.CacheFor(), m.Component())
	}
	ctx := context.Background()
	if ok, _ := m.AuthorizedToSee(ctx, user("viewer")); !ok {
		t.Error("viewer holds orders:viewAny")
	}
	if ok, _ := m.AuthorizedToSee(ctx, model.NewRequest(nil, nil)); ok {
		t.Error("guests should not see a capability-gated metric")
	}

	trend, _ := b.cards.Make("orders-per-day")
	for name, req := range map[string]*model.Request{"guest": model.NewRequest(nil, nil), "admin": user("admin")} {
		if ok, err := trend.AuthorizedToSee(ctx, req); ok || err != nil {
			t.Errorf("%s sees a metric without capabilities or resource: %v, %v", name, ok, err)
		}
	}
	if got := trend.(metric.Metric).Ranges(); len(got) != 2 || got[1].Token != metric.RangeMTD {
		t.Errorf("ranges = %v", got)
	}
}

func TestBuild_metricsCalculateInDryRun(t *testing.T) {
	b := buildTestdata(t)
	for _, key := range []string{"new-orders", "orders-per-day", "latest-orders"} {
		c, _ := b.cards.Make(key)
		r, err := c.(metric.Metric).Calculate(context.Background(), user("admin"))
		if err != nil {
			t.Errorf("%s: Calculate error = %v", key, err)
			continue
		}
		if key == "new-orders" && r.(*metric.ValueResult).Prefix != "#" {
			t.Errorf("prefix = %q", r.(*metric.ValueResult).Prefix)
		}
	}
}

func TestBuild_dashboards(t *testing.T) {
	b := buildTestdata(t)
	if len(b.Dashboards) != 2 {
		t.Fatalf("dashboards = %d", len(b.Dashboards))
	}
	main, sales := b.Dashboards[0], b.Dashboards[1]
	ctx := context.Background()

	if main.URIKey() != "main" || sales.URIKey() != "sales" || sales.Name() != "Sales Overview" {
		t.Errorf("identity = %s, %s / %s", main.URIKey(), sales.URIKey(), sales.Name())
	}
	if !sales.ShouldShowRefreshButton() || *sales.Icon() != "chart" || *sales.Category() != "Finance" {
		t.Error("sales presentation fields not applied")
	}
	if ok, _ := main.AuthorizedToSee(ctx, model.NewRequest(nil, nil)); !ok {
		t.Error("main is always visible")
	}
	if ok, _ := sales.AuthorizedToSee(ctx, user("viewer")); ok {
		t.Error("viewer lacks dashboards:sales:view")
	}
	if ok, _ := sales.AuthorizedToSee(ctx, user("admin")); !ok {
		t.Error("admin holds every capability")
	}

	cards, err := sales.Cards(ctx, user("admin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 || cards[1].URIKey() != "latest-orders" {
		t.Errorf("cards = %v", cards)
	}
	if b.logs.FilterField(zap.String("card", "help")).Len() != 1 {
		t.Errorf("logs = %+v", b.logs.All())
	}

	if b.meta.Metadata(metadata.KindDashboard, "sales")["description"] != "Revenue and order volume" {
		t.Error("dashboard meta should become class defaults")
	}
}

func TestBuild_resources(t *testing.T) {
	b := buildTestdata(t)
	if len(b.Resources) != 1 {
		t.Fatalf("resources = %d", len(b.Resources))
	}
	r := b.Resources[0]
	if r.URIKey() != "orders" || len(r.Filters()) != 5 {
		t.Errorf("resource = %s with %d filters", r.URIKey(), len(r.Filters()))
	}
	keys := []string{"status", "search", "created", "total", "priority"}
	for i, f := range r.Filters() {
		if f.Key() != keys[i] {
			t.Errorf("filter[%d] = %s, want %s", i, f.Key(), keys[i])
		}
	}
	if _, perPage := r.Page(user("viewer")); perPage != 20 {
		t.Errorf("perPage = %d", perPage)
	}
}

func TestBuild_menu(t *testing.T) {
	b := buildTestdata(t)
	resolver := menu.NewResolver(nil)
	ctx := context.Background()

	tree, err := resolver.Resolve(ctx, user("viewer"), b.Menu)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tree.Items) != 2 {
		t.Fatalf("sections = %+v", tree.Items)
	}
	if kids := tree.Items[0].Children; len(kids) != 1 || kids[0].Meta["uriKey"] != "main" {
		t.Errorf("viewer dashboards = %+v", kids)
	}
	sales := tree.Items[1]
	if !sales.Collapsible || len(sales.Children) != 2 {
		t.Fatalf("sales section = %+v", sales)
	}
	if sales.Children[1].Badge != int64(0) {
		t.Errorf("badge = %#v, want a row count", sales.Children[1].Badge)
	}

	guest, err := resolver.Resolve(ctx, model.NewRequest(nil, nil), b.Menu)
	if err != nil {
		t.Fatal(err)
	}
	if len(guest.Items) != 1 {
		t.Errorf("guest sections = %+v, the empty collapsible section should drop", guest.Items)
	}
}

func TestSplitCapability(t *testing.T) {
	tests := []struct {
		in      string
		subject any
		ability string
	}{
		{"orders:viewAny", "orders", "viewAny"},
		{"dashboards:sales:view", "dashboards:sales", "view"},
		{"*", nil, "*"},
	}
	for _, tt := range tests {
		subject, ability := splitCapability(tt.in)
		if subject != tt.subject || ability != tt.ability {
			t.Errorf("splitCapability(%q) = %v, %q", tt.in, subject, ability)
		}
	}
}

func TestBuild_duplicateMetricKey(t *testing.T) {
	cards := card.NewRegistry()
	if err := cards.RegisterCard(card.New("NewOrders")); err != nil {
		t.Fatal(err)
	}
	_, err := NewBuilder(nil, cards).Build([]model.DomainDefinition{{
		Metrics: []model.MetricDefinition{{Key: "new-orders", Name: "New Orders", Kind: model.MetricCount, Table: "o", DateColumn: "c"}},
	}})
	if !model.IsConfigurationError(err) {
		t.Errorf("error = %v, want configuration error", err)
	}
}
