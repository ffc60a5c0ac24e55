package main

import (
	"flag"
	"log"
	"runtime"

	"distepi"
)

func main() {
	numCPUPtr := flag.Int("threads", 0, "set GOMAXPROCS for the run (0 leaves it unchanged); the manifest's numThreads is not affected")
	flag.Parse()

	manifestPath := flag.Arg(0)
	if manifestPath == "" {
		log.Fatal("usage: distepi <manifest.json>")
	}

	if *numCPUPtr > 0 {
		runtime.GOMAXPROCS(*numCPUPtr)
	}

	sim, changeLog, err := distepi.LoadSimulation(manifestPath)
	if err != nil {
		log.Fatalf("error building simulation from %s: %s", manifestPath, err)
	}

	if err := sim.Run(); err != nil {
		log.Fatalf("simulation failed: %s", err)
	}
	if err := changeLog.Flush(); err != nil {
		log.Fatalf("error flushing change log: %s", err)
	}
	log.Print("run complete")
}
