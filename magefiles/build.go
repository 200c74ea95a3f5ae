//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// shaderDir holds the GLSL sources; compiled SPIR-V lands next to them.
const shaderDir = "assets/shaders"

// Compiles every GLSL shader under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary.
func (Build) Engine() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/ember", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.vert"))
	if err != nil {
		return err
	}
	frags, err := filepath.Glob(filepath.Join(shaderDir, "*.frag"))
	if err != nil {
		return err
	}
	sources = append(sources, frags...)
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources under %s", shaderDir)
	}

	for _, src := range sources {
		out := src + ".spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return fmt.Errorf("compiling %s: %w", src, err)
		}
	}
	fmt.Printf("Compiled %d shaders\n", len(sources))
	return nil
}

// Runs the full test suite.
func Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs gofmt over the tree and fails on unformatted files.
func Fmt() error {
	out, err := executeCmd("gofmt", withArgs("-l", "engine", "testbed", "main.go"))
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "" {
		return fmt.Errorf("unformatted files:\n%s", out)
	}
	return nil
}
