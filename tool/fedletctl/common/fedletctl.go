/*
Copyright 2025 The Fedlet Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package common implements the fedletctl commands over a fedlet
// configuration directory.
package common

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/sp"
	"github.com/vijayoommen/Fedlet/lib/utils"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// GlobalHelpString is the help text printed by fedletctl --help.
const GlobalHelpString = "Admin tool for the fedlet SAMLv2 service provider"

// GlobalCLIFlags keeps the CLI flags that apply to all fedletctl
// commands.
type GlobalCLIFlags struct {
	// Debug enables verbose logging to stderr.
	Debug bool
	// ConfigDir is the configuration directory holding the hosted SP
	// documents, remote IdP metadata and circle-of-trust files.
	ConfigDir string
	// KeyDir is the directory holding <alias>.crt and <alias>.key
	// pairs for the certificate aliases the extended configuration
	// names. Defaults to the configuration directory.
	KeyDir string
}

// Environment is the loaded configuration a command operates on.
type Environment struct {
	// Store is the configuration snapshot.
	Store *metadata.Store
	// SP is a service provider over the snapshot.
	SP *sp.SP
}

// EnvironmentFunc loads the environment on first use, so commands that
// operate on explicit files never pay for a configuration directory
// they do not read.
type EnvironmentFunc func(ctx context.Context) (*Environment, error)

// CLICommand is implemented by every fedletctl command group.
type CLICommand interface {
	// Initialize plugs the command into the CLI parser.
	Initialize(app *kingpin.Application, flags *GlobalCLIFlags)
	// TryRun executes selectedCommand if it belongs to this command
	// and reports match=true.
	TryRun(ctx context.Context, selectedCommand string, env EnvironmentFunc) (match bool, err error)
}

// Commands returns the fedletctl command set.
func Commands() []CLICommand {
	return []CLICommand{
		&MetadataCommand{},
	}
}

// Run parses the command line and executes the matching command.
func Run(ctx context.Context, commands []CLICommand) {
	var ccf GlobalCLIFlags

	app := utils.InitCLIParser("fedletctl", GlobalHelpString)
	app.Flag("debug", "Enable verbose logging to stderr.").Short('d').BoolVar(&ccf.Debug)
	app.Flag("dir", "Configuration directory with the SP, IdP and circle-of-trust documents.").Short('D').Default(".").StringVar(&ccf.ConfigDir)
	app.Flag("key-dir", "Directory with <alias>.crt and <alias>.key pairs, defaults to the configuration directory.").StringVar(&ccf.KeyDir)

	for _, command := range commands {
		command.Initialize(app, &ccf)
	}
	ver := app.Command("version", "Print the version and exit.")

	selected, err := app.Parse(os.Args[1:])
	if err != nil {
		utils.FatalError(err)
	}

	level := slog.LevelWarn
	if ccf.Debug {
		level = slog.LevelDebug
	}
	utils.InitLogger(level)

	if selected == ver.FullCommand() {
		fmt.Println(fedlet.Version)
		return
	}

	env := func(ctx context.Context) (*Environment, error) {
		return NewEnvironment(&ccf)
	}
	for _, command := range commands {
		match, err := command.TryRun(ctx, selected, env)
		if err != nil {
			utils.FatalError(err)
		}
		if match {
			return
		}
	}
}

// NewEnvironment loads the configuration directory and builds a
// service provider over it. Key pairs are read from the key directory
// for every certificate alias the extended configuration names.
func NewEnvironment(ccf *GlobalCLIFlags) (*Environment, error) {
	store, err := metadata.LoadDirectory(ccf.ConfigDir)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	keyDir := ccf.KeyDir
	if keyDir == "" {
		keyDir = ccf.ConfigDir
	}
	keyStore, err := loadKeyStore(keyDir, store.ServiceProvider().Config)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	provider, err := sp.New(sp.Config{
		Source:   metadata.NewStaticSource(store),
		KeyStore: keyStore,
		Logger:   slog.With(fedlet.ComponentKey, fedlet.ComponentCLI),
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Environment{Store: store, SP: provider}, nil
}

func loadKeyStore(dir string, cfg *metadata.SPExtendedConfig) (xmlsig.KeyStore, error) {
	pairs := make(map[string]tls.Certificate)
	for _, alias := range []string{cfg.SigningCertAlias, cfg.EncryptionCertAlias} {
		if alias == "" {
			continue
		}
		if _, ok := pairs[alias]; ok {
			continue
		}
		pair, err := xmlsig.LoadKeyPair(filepath.Join(dir, alias+".crt"), filepath.Join(dir, alias+".key"))
		if err != nil {
			return nil, trace.Wrap(err)
		}
		pairs[alias] = pair
	}
	return xmlsig.NewMemoryKeyStore(pairs), nil
}
