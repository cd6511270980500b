package main

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"

	"github.com/fsdevblog/groph-pay/internal/logger"

	"github.com/fsdevblog/groph-pay/internal/app"
	"github.com/fsdevblog/groph-pay/internal/config"
)

func main() {
	// .env нужен только для локального запуска, в остальных окружениях его нет.
	_ = godotenv.Load()

	conf := config.MustLoadConfig()
	l := logger.New(os.Stdout)

	if err := app.New(conf, l).Run(); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Info("graceful shutdown")
			os.Exit(0)
		}
		panic(err)
	}
}
