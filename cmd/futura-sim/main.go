package main

import (
	"flag"
	"futura2mqtt/sim"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:5020", "Address the Modbus TCP server listens on")
	step := flag.Duration("step", 2*time.Second, "Simulation step. 0 freezes the register image")
	debug := flag.Bool("debug", false, "Log every register write")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctrlC := make(chan os.Signal, 1)
	signal.Notify(ctrlC, os.Interrupt, syscall.SIGTERM)

	s, err := sim.New(&sim.Config{Listen: *listen})
	if err != nil {
		log.Fatalf("Error creating simulator: %s", err)
	}
	if err := s.Start(); err != nil {
		log.Fatalf("Error starting simulator: %s", err)
	}

	if *step > 0 {
		go func() {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			ticker := time.NewTicker(*step)
			defer ticker.Stop()
			for range ticker.C {
				s.Step(*step, rng)
			}
		}()
	}

	<-ctrlC
	if err := s.Stop(); err != nil {
		log.WithError(err).Warn("Error stopping simulator")
	}
}
