package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"gleipnir/internal/common"
	gleipnirNet "gleipnir/internal/net"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	customer := flag.Uint("customer", 0, "Customer id (compulsory)")
	sequence := flag.Uint("sequence", 1, "Sequence number of the first order sent")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'oco', 'terminate']")

	// Order Parameters
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	kindStr := flag.String("kind", "gtc", "Order kind: 'gtc', 'ioc' or 'fok'")
	market := flag.Bool("market", false, "Send a market order, -price is ignored")
	price := flag.Int("price", 100, "Limit price")
	sellPrice := flag.Int("sell-price", 0, "Limit price of the sell leg of an OCO order")
	qtyStr := flag.String("qty", "10", "Amount or comma-separated list (e.g. 10,20,50)")

	// Cancel Parameters
	cancelSeq := flag.Uint("cancel", 0, "Sequence number of the order to cancel")

	flag.Parse()

	// Validation
	if *customer == 0 && *action != "terminate" {
		fmt.Println("Error: -customer is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	kind, err := parseKind(*kindStr)
	if err != nil {
		log.Fatal(err)
	}

	builder := common.NewBuilder(uint32(*customer))
	builder.Sequence = uint32(*sequence)
	builder.RealTime = true

	var records []common.Record
	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			records = append(records, builder.Build(q, orderPrice(*sideStr, *price, *market, kind), kind, common.ProcessOrder))
		}

	case "oco":
		for _, q := range parseQuantities(*qtyStr) {
			buy, sell := builder.OCO(q, -int32(*price), int32(*sellPrice), kind)
			records = append(records, buy, sell)
		}

	case "cancel":
		if *cancelSeq == 0 {
			log.Fatal("Error: -cancel is required for cancellation")
		}
		records = append(records, builder.Cancel(uint32(*cancelSeq)))

	case "terminate":
		records = append(records, builder.Terminate())

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	if err := gleipnirNet.WriteRecords(conn, records...); err != nil {
		log.Fatalf("Failed to send: %v", err)
	}
	for i := range records {
		r := &records[i]
		if r.Process() == common.ProcessCancel || r.Process() == common.ProcessTerminate {
			fmt.Printf("-> Sent %v for %s\n", r.Process(), common.FormatID(r.ID()))
			continue
		}
		fmt.Printf("-> Sent %v %v %s: %d @ %d\n", r.Kind(), r.Side(), common.FormatID(r.ID()), r.Amount(), r.Price())
	}
}

func parseKind(s string) (common.Kind, error) {
	switch strings.ToLower(s) {
	case "gtc":
		return common.KindGTC, nil
	case "ioc":
		return common.KindIOC, nil
	case "fok":
		return common.KindFOK, nil
	}
	return 0, fmt.Errorf("unknown order kind %q", s)
}

// orderPrice encodes the side into the sign of the price.
func orderPrice(side string, price int, market bool, kind common.Kind) int32 {
	buy := strings.ToLower(side) != "sell"
	switch {
	case market && kind == common.KindGTC:
		log.Fatal("Error: market orders must be ioc or fok")
	case market && buy:
		return common.MarketBuyPrice
	case market:
		return common.MarketSellPrice
	case buy:
		return -int32(price)
	}
	return int32(price)
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}
