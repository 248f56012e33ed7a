package api

import (
	"github.com/go-chi/chi"
)

func (a *Server) SetupRoutes(r *chi.Mux) {
	handlers := a.handlers
	r.Get("/healthcheck", registerHandler(handlers.HealthCheck))

	r.Get("/v1/deposit/info", registerHandler(handlers.GetDepositInfo))
	r.Post("/v1/deposit/record", registerHandler(handlers.RecordDeposit))
	r.Get("/v1/deposit", registerHandler(handlers.GetDeposit))
	r.Get("/v1/deposits", registerHandler(handlers.GetDepositsByOwner))
	r.Post("/v1/settlement/refund", registerHandler(handlers.RequestRefund))
	r.Post("/v1/settlement/refund/confirm", registerHandler(handlers.ConfirmRefund))
	r.Post("/v1/settlement/slash", registerHandler(handlers.RequestSlash))
	r.Post("/v1/settlement/slash/confirm", registerHandler(handlers.ConfirmSlash))
}
