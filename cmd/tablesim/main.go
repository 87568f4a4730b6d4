package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	aqmconfig "github.com/aquamarinepk/aqm/config"
	aqm "github.com/aquamarinepk/aqm/log"

	"github.com/appetiteclub/tableside/internal/session"
	"github.com/appetiteclub/tableside/internal/tablesim"
)

const (
	appNamespace = "TABLESIM"
	appName      = "tablesim"
	appVersion   = "0.1.0"
)

func main() {
	config, err := aqmconfig.LoadConfig("", appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel := config.GetString("log.level")
	logger := aqm.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	var publisher tablesim.Publisher
	var subscriber tablesim.Subscriber

	natsURL := config.GetStringOrDef("nats.url", "")
	if natsURL != "" {
		pub, err := tablesim.NewNATSPublisher(natsURL)
		if err != nil {
			log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
		}
		defer pub.Close()
		publisher = pub

		sub, err := tablesim.NewNATSSubscriber(natsURL)
		if err != nil {
			log.Fatalf("%s(%s) cannot connect to NATS subscriber: %v", appName, appVersion, err)
		}
		defer sub.Close()
		subscriber = sub
	}

	hub := tablesim.NewHub(demoCatalog(), publisher, logger)
	if subscriber != nil {
		if err := hub.StartFanout(ctx, subscriber); err != nil {
			log.Fatalf("%s(%s) cannot start fanout: %v", appName, appVersion, err)
		}
		logger.Info("NATS fanout enabled", "url", natsURL)
	}

	server := tablesim.NewServer(hub, logger)
	addr := config.GetStringOrDef("web.addr", ":8090")

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("Starting %s(%s) on %s", appName, appVersion, addr)
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}
	logger.Infof("%s(%s) stopped", appName, appVersion)
}

func demoCatalog() []session.Product {
	return []session.Product{
		{ID: 1, Name: "Margherita", Price: "9.50", CategoryID: 1, Ingredients: []session.Ingredient{
			{ID: 1, Name: "Mozzarella", Removable: true},
			{ID: 2, Name: "Basil", Removable: true},
		}},
		{ID: 2, Name: "Carbonara", Price: "12.00", CategoryID: 2, Ingredients: []session.Ingredient{
			{ID: 3, Name: "Pancetta", Removable: true},
		}},
		{ID: 3, Name: "Tiramisu", Price: "6.25", CategoryID: 3},
		{ID: 4, Name: "Sparkling Water", Price: "2.50", CategoryID: 4},
	}
}
