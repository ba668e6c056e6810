package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eyeplotter/internal/config"
	"eyeplotter/internal/controller"
	"eyeplotter/internal/motor"
	"eyeplotter/internal/serial"
	"eyeplotter/internal/sim"
	"eyeplotter/internal/web"
	"eyeplotter/internal/wifi"
)

// nopDriver keeps the control loop runnable on machines without motor
// hardware (development laptops, CI).
type nopDriver struct{}

func (nopDriver) DriveVertical(float64) error   { return nil }
func (nopDriver) DriveHorizontal(float64) error { return nil }
func (nopDriver) Stop() error                   { return nil }

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logBuf := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var drv controller.Driver = nopDriver{}
	if cfg.Motors.Enable {
		hw, err := motor.Open(motor.PinConfig{
			VerticalForward:   cfg.Motors.VerticalForward,
			VerticalReverse:   cfg.Motors.VerticalReverse,
			VerticalPWM:       cfg.Motors.VerticalPWM,
			HorizontalForward: cfg.Motors.HorizontalForward,
			HorizontalReverse: cfg.Motors.HorizontalReverse,
			HorizontalPWM:     cfg.Motors.HorizontalPWM,
		})
		if err != nil {
			log.Printf("motor init failed, outputs disabled: %v", err)
		} else {
			defer hw.Close()
			drv = hw
		}
	}

	ctrl := controller.New(drv, controller.Config{
		Interval:   cfg.Control.Interval,
		Vertical:   controller.Gains(cfg.Control.Vertical),
		Horizontal: controller.Gains(cfg.Control.Horizontal),
	})

	log.Printf("eyeplotter starting")
	log.Printf("control interval=%s motors=%v", cfg.Control.Interval, cfg.Motors.Enable)

	go func() {
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("control loop stopped: %v", err)
			cancel()
		}
	}()

	ser := serial.New(serial.Config{
		Enable: cfg.Serial.Enable,
		Device: cfg.Serial.Device,
		Baud:   cfg.Serial.Baud,
	}, ctrl.Decoder())
	if err := ser.Start(ctx); err != nil {
		log.Printf("serial init failed: %v", err)
	}
	defer ser.Close()

	if cfg.Sim.Enable {
		gaze := sim.GazeSim{Period: cfg.Sim.Period, BlinkEvery: cfg.Sim.BlinkEvery}
		go func() { _ = gaze.Run(ctx, cfg.Sim.Interval, ctrl.Decoder()) }()
		log.Printf("gaze simulator running, interval=%s", cfg.Sim.Interval)
	}

	if cfg.HTTP.Enable {
		go func() {
			err := web.Serve(ctx, cfg.HTTP.Listen, web.Deps{
				Controller: ctrl,
				Device:     web.DeviceInfo{Name: cfg.Device.Name, Version: cfg.Device.Version},
				WiFi:       wifi.Probe,
				Serial:     ser.Snapshot,
				Logs:       logBuf,
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("http server stopped: %v", err)
				cancel()
			}
		}()
		log.Printf("http listening on %s", cfg.HTTP.Listen)
	}

	<-ctx.Done()
	log.Printf("eyeplotter stopping")
}
