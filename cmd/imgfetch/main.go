package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aymanshehab/imgfetch/internal/app"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	once := flag.Bool("once", false, "Run a single batch and exit")
	flag.Parse()

	app := app.New(*cfgFileName)

	if *once {
		if err := app.RunOnce(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		app.Stop()

		return
	}

	go app.Start()

	c := make(chan os.Signal, 1)
	defer close(c)
	done := make(chan struct{})

	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer close(done)

		for sig := range c {
			switch sig {
			case syscall.SIGUSR1:
				go app.StartRun()
			case syscall.SIGUSR2:
				go app.TogglePause()
			case syscall.SIGTERM, syscall.SIGINT:
				fmt.Println("Received termination signal. Shutting down...")
				done <- struct{}{}

				return
			}
		}
	}()

	<-done
	app.Stop()
	time.Sleep(2 * time.Second)
	fmt.Println("done")
}
