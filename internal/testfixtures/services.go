package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/storeadapter"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger routes service logs to logger instead of slog.Default.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services bundles every application service over one set of repositories.
type Services struct {
	Catalog   *application.CatalogService
	Rules     *application.RuleService
	Schedules *application.ScheduleService
	Sessions  *application.SessionService
	Billing   *application.BillingService
	Payments  *application.PaymentService
	Blackouts *application.BlackoutService
	Expenses  *application.ExpenseService
}

// NewServices wires every service over repos with a USD formatter.
func (f *ServiceFactory) NewServices(repos *storeadapter.Repositories) Services {
	formatter, err := billing.NewFormatter("en-US", "USD")
	if err != nil {
		panic(err)
	}
	idGen := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()

	billingService := application.NewBillingServiceWithLogger(repos.Sessions, repos.Services, repos.Expenses, formatter, f.Logger)
	return Services{
		Catalog:   application.NewCatalogServiceWithLogger(repos.Families, repos.Services, repos.Rules, idGen, now, f.Logger),
		Rules:     f.NewRuleService(RuleServiceDeps{Rules: repos.Rules, Services: repos.Services, Children: repos.Children}),
		Schedules: f.NewScheduleService(ScheduleServiceDeps{Rules: repos.Rules, Services: repos.Services, Sessions: repos.Sessions, Blackouts: repos.Blackouts}),
		Sessions:  f.NewSessionService(SessionServiceDeps{Sessions: repos.Sessions, Services: repos.Services, Children: repos.Children}),
		Billing:   billingService,
		Payments:  application.NewPaymentServiceWithLogger(repos.Payments, billingService, idGen, now, f.Logger),
		Blackouts: application.NewBlackoutServiceWithLogger(repos.Blackouts, idGen, now, f.Logger),
		Expenses:  application.NewExpenseServiceWithLogger(repos.Expenses, idGen, now, f.Logger),
	}
}

// RuleServiceDeps captures dependencies for constructing a rule service.
type RuleServiceDeps struct {
	Rules       application.RuleRepository
	Services    application.ServiceCatalog
	Children    application.ChildDirectory
	IDGenerator func() string
	Now         func() time.Time
}

// NewRuleService builds a rule service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewRuleService(deps RuleServiceDeps) *application.RuleService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewRuleServiceWithLogger(
		deps.Rules,
		deps.Services,
		deps.Children,
		idGen,
		now,
		f.Logger,
	)
}

// ScheduleServiceDeps captures dependencies for constructing a schedule service.
type ScheduleServiceDeps struct {
	Rules       application.RuleReader
	Services    application.ServiceCatalog
	Sessions    application.GeneratedSessionWriter
	Blackouts   application.BlackoutLister
	IDGenerator func() string
	Now         func() time.Time
}

// NewScheduleService builds a schedule service using the supplied dependencies.
func (f *ServiceFactory) NewScheduleService(deps ScheduleServiceDeps) *application.ScheduleService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewScheduleServiceWithLogger(
		deps.Rules,
		deps.Services,
		deps.Sessions,
		deps.Blackouts,
		idGen,
		now,
		f.Logger,
	)
}

// SessionServiceDeps captures dependencies for constructing a session service.
type SessionServiceDeps struct {
	Sessions    application.SessionRepository
	Services    application.ServiceCatalog
	Children    application.ChildDirectory
	IDGenerator func() string
	Now         func() time.Time
}

// NewSessionService builds a session service using the supplied dependencies.
func (f *ServiceFactory) NewSessionService(deps SessionServiceDeps) *application.SessionService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewSessionServiceWithLogger(
		deps.Sessions,
		deps.Services,
		deps.Children,
		idGen,
		now,
		f.Logger,
	)
}

func (f *ServiceFactory) defaults(idGen func() string, now func() time.Time) (func() string, func() time.Time) {
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return idGen, now
}
