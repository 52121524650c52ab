package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Catalog    *CatalogHandler
	Rules      *RuleHandler
	Schedules  *ScheduleHandler
	Sessions   *SessionHandler
	Billing    *BillingHandler
	Blackouts  *BlackoutHandler
	Payments   *PaymentHandler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Rules != nil {
		mux.HandleFunc("/rules", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Rules.Create(w, r)
		})
		mux.HandleFunc("/rules/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/rules/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithResourceID(r.Context(), id))
			switch action {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Rules.Get(w, r)
				case http.MethodPut:
					cfg.Rules.Update(w, r)
				case http.MethodDelete:
					cfg.Rules.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case "expand":
				if cfg.Schedules == nil {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Schedules.Expand(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Sessions != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Sessions.List(w, r)
			case http.MethodPost:
				cfg.Sessions.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/sessions/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithResourceID(r.Context(), id))
			switch action {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Sessions.Get(w, r)
				case http.MethodPut:
					cfg.Sessions.Edit(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut)
				}
			case "transition":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Sessions.Transition(w, r)
			case "amount":
				if cfg.Billing == nil {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Billing.Amount(w, r)
			case "expenses":
				if cfg.Billing == nil {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Billing.AddExpense(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Catalog != nil {
		mux.HandleFunc("/families", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Catalog.CreateFamily(w, r)
		})
		mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Catalog.ListServices(w, r)
			case http.MethodPost:
				cfg.Catalog.CreateService(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/services/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/services/")
			if !ok || action != "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPut {
				methodNotAllowed(w, http.MethodPut)
				return
			}
			cfg.Catalog.UpdateService(w, r.WithContext(ContextWithResourceID(r.Context(), id)))
		})
	}

	if cfg.Catalog != nil || cfg.Sessions != nil {
		mux.HandleFunc("/families/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/families/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithResourceID(r.Context(), id))
			switch {
			case action == "" && cfg.Catalog != nil:
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Catalog.GetFamily(w, r)
			case action == "children" && cfg.Catalog != nil:
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Catalog.AddChild(w, r)
			case action == "rules" && cfg.Catalog != nil:
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Catalog.ListFamilyRules(w, r)
			case action == "billable-sessions" && cfg.Sessions != nil:
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Sessions.Billable(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Blackouts != nil {
		mux.HandleFunc("/blackouts", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Blackouts.List(w, r)
			case http.MethodPost:
				cfg.Blackouts.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/blackouts/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/blackouts/")
			if !ok || action != "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Blackouts.Delete(w, r.WithContext(ContextWithResourceID(r.Context(), id)))
		})
	}

	if cfg.Payments != nil {
		mux.HandleFunc("/payments", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Payments.List(w, r)
			case http.MethodPost:
				cfg.Payments.Record(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/payments/", func(w http.ResponseWriter, r *http.Request) {
			id, action, ok := splitPath(r.URL.Path, "/payments/")
			if !ok {
				http.NotFound(w, r)
				return
			}
			if id == "preview" && action == "" {
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Payments.Preview(w, r)
				return
			}
			r = r.WithContext(ContextWithResourceID(r.Context(), id))
			switch action {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Payments.Get(w, r)
			case "cancel":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Payments.Cancel(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
