package server

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ticketi/ticketi/config"
	"github.com/ticketi/ticketi/internal/handlers"
	"github.com/ticketi/ticketi/internal/middleware"
	"github.com/ticketi/ticketi/internal/services"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	r := gin.Default()

	SetupRoutes(r, db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info().Str("port", port).Msg("server listening")
	return r.Run(":" + port)
}

// SetupRoutes wires the handlers onto the router. Services are constructed
// once with the shared connection pool and injected into the handlers; no
// request ever pulls a database handle out of ambient context.
func SetupRoutes(r *gin.Engine, db *gorm.DB) {
	userService := services.NewUserService(db)
	eventService := services.NewEventService(db)
	ticketService := services.NewTicketService(db)

	authHandler := handlers.NewAuthHandler(userService)
	profileHandler := handlers.NewProfileHandler(userService)
	eventHandler := handlers.NewEventHandler(eventService)
	ticketHandler := handlers.NewTicketHandler(ticketService)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/v1")
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", eventHandler.ListEvents)
			eventPublic.GET("/:id", eventHandler.GetEvent)
		}

		ticketPublic := public.Group("/tickets")
		{
			ticketPublic.GET("/available/:eventId", ticketHandler.GetAvailable)
			ticketPublic.GET("/resale/:eventId", ticketHandler.ListResale)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/profile", profileHandler.GetProfile)
		protected.PUT("/profile", profileHandler.UpdateProfile)

		protected.GET("/my-events", eventHandler.ListMyEvents)
		protected.GET("/my-tickets", ticketHandler.MyTickets)

		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", eventHandler.CreateEvent)
			eventProtected.PUT("/:id", eventHandler.UpdateEvent)
			eventProtected.DELETE("/:id", eventHandler.DeleteEvent)
		}

		ticketProtected := protected.Group("/tickets")
		{
			ticketProtected.POST("/purchase/:eventId", ticketHandler.PurchasePrimary)
			ticketProtected.POST("/resell/:id", ticketHandler.Resell)
			ticketProtected.POST("/cancel-resale/:id", ticketHandler.CancelResale)
			ticketProtected.POST("/purchase-resale/:id", ticketHandler.PurchaseResale)
			ticketProtected.GET("/qr/:id", ticketHandler.TicketQR)
			ticketProtected.POST("/validate", ticketHandler.ValidateTicket)
		}
	}
}
