package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	aqmconfig "github.com/aquamarinepk/aqm/config"
	aqm "github.com/aquamarinepk/aqm/log"

	"github.com/appetiteclub/tableside"
	"github.com/appetiteclub/tableside/internal/effects"
	"github.com/appetiteclub/tableside/internal/protocol"
)

const (
	appNamespace = "TABLESIDE"
	appName      = "tableside"
	appVersion   = "0.1.0"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	config, err := aqmconfig.LoadConfig("", appNamespace, os.Args[3:])
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel := config.GetString("log.level")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := aqm.NewLogger(logLevel)

	token := os.Args[1]
	name := os.Args[2]

	client, err := tableside.New(tableside.Config{
		APIBase:      config.GetStringOrDef("api.url", tableside.DefaultAPIBase),
		RealtimeBase: config.GetStringOrDef("realtime.url", tableside.DefaultRealtimeBase),
		DataDir:      config.GetStringOrDef("data.dir", defaultDataDir()),
		Notifier:     effects.LogNotifier{Logger: logger},
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Cannot start client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	resp, err := client.JoinTable(ctx, token)
	if err != nil {
		log.Fatalf("Cannot join table %s: %v", token, err)
	}
	client.EnterName(name)

	fmt.Printf("Joined table %d at %s as %s\n", resp.Table.Number, resp.Restaurant.Name, name)
	fmt.Println("Commands: menu | order | add <productId> [qty] | qty <itemId> <n> | rm <itemId> | confirm | staff | bill | pay <method> | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "menu":
			for _, p := range client.Store.Catalog() {
				fmt.Printf("  %3d  %-20s %8s\n", p.ID, p.Name, p.Price)
			}
		case "order":
			printOrder(client)
		case "add":
			if len(fields) < 2 {
				fmt.Println("usage: add <productId> [qty]")
				continue
			}
			productID, _ := strconv.ParseInt(fields[1], 10, 64)
			qty := 1
			if len(fields) > 2 {
				qty, _ = strconv.Atoi(fields[2])
			}
			client.Realtime.AddItem(protocol.AddItemPayload{
				ProductID:  productID,
				ClientName: name,
				Quantity:   qty,
				UnitPrice:  priceFor(client, productID),
			})
		case "qty":
			if len(fields) < 3 {
				fmt.Println("usage: qty <itemId> <n>")
				continue
			}
			itemID, _ := strconv.ParseInt(fields[1], 10, 64)
			n, _ := strconv.Atoi(fields[2])
			client.Realtime.UpdateQuantity(itemID, n)
		case "rm":
			if len(fields) < 2 {
				fmt.Println("usage: rm <itemId>")
				continue
			}
			itemID, _ := strconv.ParseInt(fields[1], 10, 64)
			client.Realtime.RemoveItem(itemID)
		case "confirm":
			client.Realtime.ConfirmOrder()
		case "staff":
			client.Realtime.CallStaff("")
		case "bill":
			client.Realtime.CloseOrder()
		case "pay":
			method := "efectivo"
			if len(fields) > 1 {
				method = fields[1]
			}
			client.Realtime.PayOrder(method)
		case "quit", "exit":
			return
		default:
			fmt.Printf("Unknown command: %s\n", fields[0])
		}
	}
}

func printOrder(client *tableside.Client) {
	snapshot := client.Store.Snapshot()
	fmt.Printf("Order #%d [%s]\n", client.Store.OrderID(), snapshot.Status)
	for _, item := range snapshot.Items {
		fmt.Printf("  %3d  %dx %-20s %8s  (%s)\n", item.ID, item.Quantity, item.ProductName, item.UnitPrice, item.ClientName)
	}
	fmt.Printf("Total: %s\n", snapshot.Total)
	if !client.Realtime.Connected() {
		fmt.Println("(offline, reconnecting)")
	}
}

func priceFor(client *tableside.Client, productID int64) string {
	for _, p := range client.Store.Catalog() {
		if p.ID == productID {
			return p.Price
		}
	}
	return ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tableside"
	}
	return home + "/.tableside"
}

func printUsage() {
	fmt.Printf(`%s %s - Appetite table client

Usage:
  %s <table-token> <your-name> [options]

Environment Variables:
  TABLESIDE_API_URL       Venue API base (default: %s)
  TABLESIDE_REALTIME_URL  Realtime endpoint base (default: %s)
  TABLESIDE_DATA_DIR      Session storage directory (default: ~/.tableside)
  TABLESIDE_LOG_LEVEL     Log level: debug, info, warn, error (default: info)

Examples:
  %s mesa-42 Ana
  TABLESIDE_API_URL=http://localhost:8090 TABLESIDE_REALTIME_URL=ws://localhost:8090 %s mesa-42 Ana

`, appName, appVersion, appName, tableside.DefaultAPIBase, tableside.DefaultRealtimeBase, appName, appName)
}
