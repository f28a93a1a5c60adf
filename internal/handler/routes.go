package handler

import (
	"github.com/gorilla/mux"

	"finpay-ledger/internal/auth"
)

// RegisterRoutes mounts the ledger API on router. Account creation is the only
// route reachable without a bearer token.
func RegisterRoutes(router *mux.Router, accounts *AccountHandler, transactions *TransactionHandler, authenticator *auth.Authenticator) {
	router.HandleFunc("/accounts", accounts.CreateAccount).Methods("POST")

	protected := router.NewRoute().Subrouter()
	protected.Use(Authenticate(authenticator))

	// Account routes
	protected.HandleFunc("/accounts/{account_id}", accounts.GetAccount).Methods("GET")
	protected.HandleFunc("/accounts/{account_id}/balance", accounts.GetBalance).Methods("GET")
	protected.HandleFunc("/accounts/{account_id}/transactions", accounts.ListTransactions).Methods("GET")

	// Transaction routes
	protected.HandleFunc("/transfers", transactions.Transfer).Methods("POST")
	protected.HandleFunc("/topups", transactions.TopUp).Methods("POST")
	protected.HandleFunc("/transactions/{transaction_id}", transactions.GetTransaction).Methods("GET")
	protected.HandleFunc("/transactions/{transaction_id}/status", transactions.Settle).Methods("POST")
}
