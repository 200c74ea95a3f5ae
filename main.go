package main

import (
	"flag"
	"os"

	"github.com/ember-engine/ember/engine"
	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/testbed"
)

func main() {
	configPath := flag.String("config", "ember.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		core.LogError("loading configuration: %v", err)
		os.Exit(1)
	}

	e, err := engine.New(testbed.New(), cfg)
	if err != nil {
		core.LogError("engine boot failed: %v", err)
		os.Exit(1)
	}

	if err := e.Run(); err != nil {
		core.LogError("engine stopped with error: %v", err)
		e.Shutdown()
		os.Exit(1)
	}
	e.Shutdown()
}
