// webhook-tap sends synthetic Zadarma webhook events at a running bridge.
// Useful for exercising the dial-plan without placing real calls.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

func main() {
	target := flag.String("url", "http://127.0.0.1:8088/webhook", "Bridge webhook URL")
	event := flag.String("event", "NOTIFY_INTERNAL", "Event type to send")
	caller := flag.String("caller", "0933297777", "caller_id field")
	internal := flag.String("internal", "201", "internal field (dial-plan code)")
	destination := flag.String("destination", "", "destination field for completion events")
	duration := flag.Int("duration", 0, "duration field for completion events")
	disposition := flag.String("disposition", "", "disposition field for completion events")
	echo := flag.Bool("echo", false, "Run the zd_echo verification handshake and exit")
	flow := flag.String("flow", "", "Send a trigger + completion pair for a target number")
	flag.Parse()

	if *echo {
		if err := verifyEcho(*target); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("echo handshake ok")
		return
	}

	if *flow != "" {
		if err := runFlow(*target, *caller, *internal, *flow); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	form := url.Values{
		"event":     {*event},
		"caller_id": {*caller},
	}
	if *internal != "" {
		form.Set("internal", *internal)
	}
	if *destination != "" {
		form.Set("destination", *destination)
	}
	if *duration > 0 {
		form.Set("duration", strconv.Itoa(*duration))
	}
	if *disposition != "" {
		form.Set("disposition", *disposition)
	}

	if err := post(*target, form); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// verifyEcho performs the same ownership check the provider does: a GET
// with zd_echo whose value must come back verbatim.
func verifyEcho(target string) error {
	challenge := fmt.Sprintf("%d.tap", time.Now().Unix())

	resp, err := http.Get(target + "?zd_echo=" + challenge)
	if err != nil {
		return fmt.Errorf("verification request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if string(body) != challenge {
		return fmt.Errorf("expected %q echoed back, got %q", challenge, string(body))
	}
	return nil
}

// runFlow simulates a full action round trip: the trigger call to a
// dial-plan code, then the answered relay callback at the target number.
func runFlow(target, caller, internal, relayNumber string) error {
	err := post(target, url.Values{
		"event":     {"NOTIFY_INTERNAL"},
		"caller_id": {caller},
		"internal":  {internal},
	})
	if err != nil {
		return err
	}

	time.Sleep(time.Second)

	return post(target, url.Values{
		"event":       {"NOTIFY_OUT_END"},
		"destination": {relayNumber},
		"duration":    {"3"},
		"disposition": {"answered"},
	})
}

func post(target string, form url.Values) error {
	fmt.Printf("-> %s %s\n", form.Get("event"), form.Encode())

	resp, err := http.PostForm(target, form)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Printf("<- %d %s\n", resp.StatusCode, string(body))
	return nil
}
