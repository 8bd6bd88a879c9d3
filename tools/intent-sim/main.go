package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/grpcx"
	flag "github.com/spf13/pflag"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// submitMethod is the booking service's IntentService.Submit.
const submitMethod = "/barberbook.booking.v1.IntentService/Submit"

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		grpcAddr = flag.String("grpc", getenv("GRPC_TARGET", ""), "send over gRPC to this address instead of HTTP")
		kind     = flag.StringP("kind", "k", "book", "book | cancel | reschedule | check_availability")
		customer = flag.StringP("customer", "c", getenv("CUSTOMER_REF", "+15550000000"), "customer reference (phone, telegram:<id>, web:<session>)")
		name     = flag.String("name", "", "customer display name")
		service  = flag.StringP("service", "s", "haircut", "service key")
		at       = flag.StringP("at", "a", "", "requested start, RFC3339 or 2006-01-02T15:04 in shop time")
		from     = flag.String("from", "", "range start")
		to       = flag.String("to", "", "range end")
		apptID   = flag.String("appointment", "", "appointment id for cancel and reschedule")
		reason   = flag.String("reason", "", "cancellation reason")
		say      = flag.String("say", "", "free text sent to /chat instead of a structured intent")
		timeout  = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *say != "" {
		out, err := postJSON(ctx, strings.TrimRight(*baseURL, "/")+"/chat", map[string]string{
			"session_id": *customer,
			"name":       *name,
			"message":    *say,
		})
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(out)
		return
	}

	intent := map[string]string{
		"kind":           *kind,
		"customer_ref":   *customer,
		"customer_name":  *name,
		"service":        *service,
		"at":             *at,
		"range_start":    *from,
		"range_end":      *to,
		"appointment_id": *apptID,
		"reason":         *reason,
	}
	for k, v := range intent {
		if strings.TrimSpace(v) == "" {
			delete(intent, k)
		}
	}

	if *grpcAddr != "" {
		out, err := submitGRPC(ctx, *grpcAddr, intent)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(out)
		return
	}
	out, err := postJSON(ctx, strings.TrimRight(*baseURL, "/")+"/api/v1/intents", intent)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(out)
}

func postJSON(ctx context.Context, url string, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	return fmt.Sprintf("status=%d\n%s", resp.StatusCode, strings.TrimSpace(pretty.String())), nil
}

func submitGRPC(ctx context.Context, addr string, intent map[string]string) (string, error) {
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	fields := make(map[string]any, len(intent))
	for k, v := range intent {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, submitMethod, req, out); err != nil {
		return "", err
	}
	raw, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
