// Package api assembles the booking service's HTTP routes.
package api

import (
	"net/http"
	"time"

	"airline-booking/internal/assistant/assistant_api"
	"airline-booking/internal/auth"
	"airline-booking/internal/booking/booking_api"
	"airline-booking/internal/checkin/checkin_api"
	"airline-booking/internal/logger"
	"airline-booking/internal/order/order_api"
	"airline-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Orders    *order_api.Handler
	Bookings  *booking_api.Handler
	CheckIn   *checkin_api.Handler
	Events    *checkin_api.SSEHandler
	Assistant *assistant_api.Handler
}

type Options struct {
	AllowedOrigins []string
	Verifier       auth.TokenVerifier
	// Throttles are nil when per-IP limits are off (dev mode).
	OrderThrottle     func(http.Handler) http.Handler
	AssistantThrottle func(http.Handler) http.Handler
	Logger            *logger.Logger
}

func passthrough(next http.Handler) http.Handler { return next }

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return passthrough
	}
	return mw
}

// requestLogger writes one API log line per request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
		})
	}
}

func NewRouter(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestLogger(opts.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	r.With(orPassthrough(opts.AssistantThrottle)).Post("/api/assistant/chat", h.Assistant.Chat)
	opts.Logger.Info("ROUTER", "Assistant route registered at /api/assistant/chat")

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier))

		r.Route("/api/payments", func(r chi.Router) {
			r.With(orPassthrough(opts.OrderThrottle)).Post("/orders", h.Orders.CreateOrder)
			r.Post("/verify", h.Bookings.VerifyPayment)
		})
		opts.Logger.Info("ROUTER", "Payment routes registered under /api/payments")

		r.Route("/api/bookings/{bookingId}", func(r chi.Router) {
			r.Get("/", h.Bookings.GetBooking)
			r.Get("/passengers", h.CheckIn.ListPassengers)
			r.Post("/check-in", h.CheckIn.CheckInBooking)
			r.Get("/events", h.Events.HandleBookingEvents)
		})

		r.Route("/api/passengers/{passengerId}", func(r chi.Router) {
			r.Post("/check-in", h.CheckIn.CheckInPassenger)
			r.Get("/boarding-pass.pdf", h.CheckIn.BoardingPassPDF)
			r.Get("/boarding-pass.png", h.CheckIn.BoardingPassQR)
		})

		r.Post("/api/boarding-passes/scan", h.CheckIn.ScanBoardingPass)
		opts.Logger.Info("ROUTER", "Booking and check-in routes registered")
	})

	return r
}
