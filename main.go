// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"unravel/cmd"
	"unravel/internal/audio"
	"unravel/internal/config"
	applog "unravel/internal/log"
	"unravel/internal/transport"
	"unravel/internal/transport/udp"
	"unravel/internal/tui"
	"unravel/pkg/build"
)

// main runs in three phases:
//
// 1. Startup (cold path): runtime tuning, PortAudio init, argument
// parsing, one-off command dispatch.
//
// 2. Concurrent (hot path): the engine starts and PortAudio begins
// invoking the callback; transports and recording run alongside.
//
// 3. Shutdown (cold path): signal-driven teardown in reverse order.
func main() {
	// Two threads cover the workload: one for the audio callback, one for
	// everything else (transports, signals, logging).
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	cfg, inv, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	applog.SetLevel(cfg.LogLevel)

	switch inv.Command {
	case "list":
		if err := printDevices(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	case "devices":
		if err := tui.RunDeviceBrowser(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	case "process":
		if err := audio.ProcessFile(cfg, inv.ProcessInput, inv.ProcessOutput, inv.ProcessStems); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	runLive(cfg, inv.Meter)
}

// runLive starts the duplex engine and blocks until SIGINT/SIGTERM, or
// until the meter UI quits when one was requested.
func runLive(cfg *config.Config, meter bool) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	publisher := buildPublisher(cfg)

	var meterPub *tui.MeterPublisher
	if meter {
		meterPub = tui.NewMeterPublisher()
		if publisher == nil {
			publisher = meterPub
		} else {
			publisher = transport.NewMultiPublisher(publisher, meterPub)
		}
	}

	engine, err := audio.NewEngine(cfg, publisher)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	// PortAudio starts calling back as soon as Start returns.
	if err := engine.Start(); err != nil {
		applog.Fatalf("%v", err)
	}

	if cfg.Recording.Enabled {
		if err := engine.StartRecording(cfg.Recording.OutputFile); err != nil {
			applog.Fatalf("%v", err)
		}
	}

	if meterPub != nil {
		// The meter owns the terminal; a signal still quits it cleanly.
		quit := make(chan struct{})
		go func() {
			<-done
			close(quit)
		}()
		if err := tui.RunMeter(meterPub, quit); err != nil {
			applog.Errorf("meter error: %v", err)
		}
	} else {
		info := build.Get()
		fmt.Printf("%s %s | separating | Ctrl+C to stop\n", info.Name, info.Version)
		<-done
	}

	if engine.IsRecording() {
		if err := engine.StopRecording(); err != nil {
			applog.Errorf("error stopping recording: %v", err)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
		}
	}

	if err := engine.Close(); err != nil {
		applog.Errorf("error closing engine: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			applog.Errorf("error closing publisher: %v", err)
		}
	}
}

// buildPublisher assembles the enabled visualization transports. Returns
// nil when none are enabled so the engine can skip publishing entirely.
func buildPublisher(cfg *config.Config) transport.Publisher {
	var pubs []transport.Publisher

	if cfg.Transport.WebSocketEnabled {
		pubs = append(pubs, transport.NewWebSocketPublisher(cfg.Transport.WebSocketAddr))
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Errorf("UDP transport disabled: %v", err)
		} else {
			pubs = append(pubs, udp.NewPublisher(sender, cfg.Transport.UDPSendHz))
		}
	}
	if cfg.Debug && len(pubs) == 0 {
		pubs = append(pubs, transport.NewLoggingPublisher())
	}

	switch len(pubs) {
	case 0:
		return nil
	case 1:
		return pubs[0]
	}
	return transport.NewMultiPublisher(pubs...)
}

// printDevices writes a plain device table to stdout, for scripts and for
// picking IDs without the interactive browser.
func printDevices() error {
	devices, err := audio.Devices()
	if err != nil {
		return err
	}

	for _, d := range devices {
		marker := " "
		switch {
		case d.IsDefaultInput && d.IsDefaultOutput:
			marker = "*"
		case d.IsDefaultInput:
			marker = "i"
		case d.IsDefaultOutput:
			marker = "o"
		}
		fmt.Printf("%s [%d] %s (%s) %d in / %d out @ %.0f Hz\n",
			marker, d.ID, d.Name, d.HostAPI,
			d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return nil
}
