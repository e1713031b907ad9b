package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/ShiraazMoollatjie/goluhn"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type Response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PayoutRequest struct {
	Amount    float64 `json:"amount"`
	Account   string  `json:"account"`
	Reference string  `json:"reference"`
}

type PayoutResponse struct {
	PayoutID string `json:"payout_id"`
	State    string `json:"state"`
}

type TransferRequest struct {
	Value       float64 `json:"value"`
	Beneficiary string  `json:"beneficiary"`
	ClientRef   string  `json:"client_ref"`
}

type TransferResponse struct {
	Tx     string `json:"tx"`
	Status string `json:"status"`
}

type ServerConfig struct {
	ServerAddress string `env:"RUN_ADDRESS"`
}

func NewServerConfig() (*ServerConfig, error) {
	cfg := ServerConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (c *ServerConfig) ParseFlags() {
	a := flag.String("a", ":7070", "Server address")
	flag.Parse()
	if isFlagPassed("a") || c.ServerAddress == "" {
		c.ServerAddress = *a
	}
}

func mockUnavailable(w http.ResponseWriter) bool {
	// mock http status 429 error
	chance429 := 10
	if chance429 > rand.Intn(100) {
		log.Println("responding with error 429")
		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTooManyRequests)
		response429 := Response{
			Error: "No more than N requests per minute allowed",
		}
		resBody, _ := json.Marshal(response429)
		w.Write(resBody)
		return true
	}

	// mock http status 500 error
	chance500 := 20
	if chance500 > rand.Intn(100) {
		log.Println("responding with error 500")
		w.WriteHeader(http.StatusInternalServerError)
		return true
	}
	return false
}

func HandleMockSwiftpayPayout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mockUnavailable(w) {
			return
		}
		var request PayoutRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			log.Println("responding with error 400")
			w.WriteHeader(http.StatusBadRequest)
			response400 := Response{
				Error: "Invalid payout request body",
			}
			resBody, _ := json.Marshal(response400)
			w.Write(resBody)
			return
		}
		if err := goluhn.Validate(request.Account); err != nil || request.Amount <= 0 {
			log.Println("responding with error 422")
			w.WriteHeader(http.StatusUnprocessableEntity)
			response422 := Response{
				Error: "Illegal payout parameters",
			}
			resBody, _ := json.Marshal(response422)
			w.Write(resBody)
			return
		}

		response200 := PayoutResponse{PayoutID: "sp-" + uuid.NewString()}
		// mock synchronous settlement
		chancePaid := 3
		if chancePaid > rand.Intn(10) {
			response200.State = "paid"
		} else {
			response200.State = "queued"
		}
		log.Println("responding with status 200, state", response200.State)
		w.WriteHeader(http.StatusOK)
		resBody, _ := json.Marshal(response200)
		w.Write(resBody)
	}
}

func HandleMockPaynovaTransfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mockUnavailable(w) {
			return
		}
		var request TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			log.Println("responding with error 400")
			w.WriteHeader(http.StatusBadRequest)
			response400 := Response{
				Error: "Invalid transfer request body",
			}
			resBody, _ := json.Marshal(response400)
			w.Write(resBody)
			return
		}
		if err := goluhn.Validate(request.Beneficiary); err != nil || request.Value <= 0 {
			log.Println("responding with error 422")
			w.WriteHeader(http.StatusUnprocessableEntity)
			response422 := Response{
				Error: "Illegal transfer parameters",
			}
			resBody, _ := json.Marshal(response422)
			w.Write(resBody)
			return
		}

		response200 := TransferResponse{Tx: "pn-" + uuid.NewString()}
		chanceSettled := 3
		if chanceSettled > rand.Intn(10) {
			response200.Status = "SETTLED"
		} else {
			response200.Status = "ACCEPTED"
		}
		log.Println("responding with status 200, status", response200.Status)
		w.WriteHeader(http.StatusOK)
		resBody, _ := json.Marshal(response200)
		w.Write(resBody)
	}
}

func InitServer(cfg *ServerConfig) (server *http.Server, err error) {
	r := chi.NewRouter()
	r.Post("/v1/payouts", HandleMockSwiftpayPayout())
	r.Post("/api/transfers", HandleMockPaynovaTransfer())
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}

func main() {
	cfg, err := NewServerConfig()
	if err != nil {
		log.Println(err)
	}
	cfg.ParseFlags()
	server, err := InitServer(cfg)
	if err != nil {
		log.Println(err)
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println(err)
	}
}
