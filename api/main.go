package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/julienschmidt/httprouter"

	. "accountsvc"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Error("opening database", "err", err)
		os.Exit(1)
	}

	if err := db.PingContext(ctx); err != nil {
		log.Error("pinging database", "err", err)
		os.Exit(1)
	}

	if err := Migrate(db); err != nil {
		log.Error("running migrations", "err", err)
		os.Exit(1)
	}

	users := NewPostgresUserRepository(db)
	tokens := NewPostgresTokenRepository(db)

	policy := DefaultPasswordPolicy()
	policy.MinLength = cfg.PasswordMinLength

	svc := NewService(users, tokens, policy)

	router := httprouter.New()
	router.Handler(http.MethodPost, "/signup", RegisterHandler(svc))
	router.Handler(http.MethodPost, "/login", LoginHandler(svc))
	router.Handler(http.MethodPost, "/logout", RequireAuth(LogoutHandler(svc), tokens))
	router.Handler(http.MethodPost, "/change-password", RequireAuth(ChangePasswordHandler(svc), tokens))
	router.Handler(http.MethodGet, "/profile", RequireAuth(GetProfileHandler(svc), tokens))
	router.Handler(http.MethodPut, "/profile", RequireAuth(UpdateProfileHandler(svc), tokens))

	log.Info("server started", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, RequestLogger(router, log)); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
