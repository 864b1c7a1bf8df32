package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/selimgur/librarium/config"
	"github.com/selimgur/librarium/handlers"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/service"
	"github.com/selimgur/librarium/store"
)

func main() {
	_ = godotenv.Load()
	config.ValidateEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	ctx := context.Background()
	db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatal("mongodb:", err)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			log.Println("mongodb disconnect:", err)
		}
	}()
	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("mongodb indexes:", err)
	}

	var s3Service *service.S3Service
	if cfg.S3Bucket != "" {
		s3Service, err = service.NewS3Service(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretKey)
		if err != nil {
			log.Fatal("s3:", err)
		}
	} else {
		log.Println("warning: AWS_S3_BUCKET not set; cover uploads will fail")
	}

	mailer := service.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, db)
	engine := service.NewBorrowingEngine(db, db, db)

	authHandler := &handlers.AuthHandler{
		DB:        db,
		Mailer:    mailer,
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  time.Duration(cfg.TokenTTLHours) * time.Hour,
	}
	booksHandler := &handlers.BooksHandler{
		DB:       db,
		S3:       s3Service,
		MaxBytes: cfg.MaxUploadMB * 1024 * 1024,
	}
	borrowingsHandler := &handlers.BorrowingsHandler{Engine: engine}
	usersHandler := &handlers.UsersHandler{DB: db}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/verify-otp", authHandler.VerifyOTP)
		r.Post("/auth/resend-otp", authHandler.ResendOTP)
		r.Post("/auth/login", authHandler.Login)

		// Public catalog browsing
		r.Get("/books", booksHandler.List)
		r.Get("/book/{id}", booksHandler.Get)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Get("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Post("/book/borrow", borrowingsHandler.Borrow)
			r.Post("/book/return", borrowingsHandler.Return)
			r.Get("/me/borrowed-books", borrowingsHandler.MyLoans)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/book/new", booksHandler.Create)
				r.Put("/book/{id}", booksHandler.Update)
				r.Delete("/book/{id}", booksHandler.Delete)
				r.Post("/book/{id}/cover", booksHandler.UploadCover)

				r.Post("/admin/borrow", borrowingsHandler.AdminBorrow)
				r.Post("/admin/return", borrowingsHandler.AdminReturn)
				r.Get("/admin/borrowings", borrowingsHandler.AllLoans)
				r.Get("/admin/overdue-books", borrowingsHandler.OverdueLoans)
				r.Delete("/admin/borrowing/{id}", borrowingsHandler.DeleteLoan)

				r.Get("/admin/users", usersHandler.List)
				r.Put("/admin/user/{id}", usersHandler.Update)
				r.Delete("/admin/user/{id}", usersHandler.Delete)
			})
		})
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Println("server listening on :" + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("shutdown:", err)
	}
}
