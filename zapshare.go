package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/zapshare/cmd"
	"github.com/LeeDigitalWorks/zapshare/pkg/env"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      env.Name(),
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	flag.Parse()

	cmd.Execute()
}
