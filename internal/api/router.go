package api

import (
	"log/slog"
	"net/http"

	"github.com/e4c-edu/settlement/internal/handler"
	"github.com/e4c-edu/settlement/stellar"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(service *stellar.Service, log *slog.Logger) http.Handler {
	settlement := handler.NewSettlementHandler(service, log)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Settlement endpoints
	mux.HandleFunc("/escrow/provision", settlement.ProvisionEscrow)
	mux.HandleFunc("/tokens/redeem", settlement.Redeem)
	mux.HandleFunc("/tokens/distribute", settlement.Distribute)

	return withCORS(mux)
}

// withCORS allows the browser reward catalog to call the settlement
// endpoints cross-origin and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
