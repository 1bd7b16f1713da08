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

package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/asciitable"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// MetadataCommand implements the fedletctl metadata command group.
type MetadataCommand struct {
	exportCmd  *kingpin.CmdClause
	inspectCmd *kingpin.CmdClause

	// sign is passed as a CLI flag to export
	sign bool
	// inspectFile is the metadata document argument to inspect
	inspectFile string

	stdout io.Writer
}

// Initialize plugs the metadata commands into the CLI parser.
func (c *MetadataCommand) Initialize(app *kingpin.Application, _ *GlobalCLIFlags) {
	meta := app.Command("metadata", "Operations on SAML metadata documents.")
	c.exportCmd = meta.Command("export", "Print the hosted SP entity descriptor for hand off to identity provider operators.")
	c.exportCmd.Flag("sign", "Sign the document with the configured signing alias.").BoolVar(&c.sign)
	c.inspectCmd = meta.Command("inspect", "Summarize an entity metadata document.")
	c.inspectCmd.Arg("file", "Path of the metadata document.").Required().StringVar(&c.inspectFile)

	if c.stdout == nil {
		c.stdout = os.Stdout
	}
}

// TryRun executes the command if selectedCommand belongs to this
// group.
func (c *MetadataCommand) TryRun(ctx context.Context, selectedCommand string, envFunc EnvironmentFunc) (match bool, err error) {
	switch selectedCommand {
	case c.exportCmd.FullCommand():
		env, err := envFunc(ctx)
		if err != nil {
			return true, trace.Wrap(err)
		}
		return true, trace.Wrap(c.Export(env))
	case c.inspectCmd.FullCommand():
		return true, trace.Wrap(c.Inspect())
	default:
		return false, nil
	}
}

// Export executes 'fedletctl metadata export'.
func (c *MetadataCommand) Export(env *Environment) error {
	out, err := env.SP.GetExportableMetadata(c.sign)
	if err != nil {
		return trace.Wrap(err)
	}
	fmt.Fprintln(c.stdout, out)
	return nil
}

// Inspect executes 'fedletctl metadata inspect <file>'.
func (c *MetadataCommand) Inspect() error {
	raw, err := os.ReadFile(c.inspectFile)
	if err != nil {
		return trace.Wrap(err)
	}
	descriptor, err := metadata.ParseEntityDescriptor(raw)
	if err != nil {
		return trace.Wrap(err)
	}

	fmt.Fprintf(c.stdout, "Entity ID: %v\n", descriptor.EntityID)
	table := asciitable.MakeTable([]string{"Service", "Binding", "Location", "Index"})
	if idp := descriptor.IDPSSODescriptor; idp != nil {
		fmt.Fprintf(c.stdout, "Role: identity provider, %v signing certificate(s), WantAuthnRequestsSigned %v\n\n",
			len(idp.KeyDescriptors), idp.WantAuthnRequestsSigned)
		for i := range idp.SingleSignOnServices {
			addEndpointRow(&table, "SingleSignOnService", &idp.SingleSignOnServices[i])
		}
		for i := range idp.SingleLogoutServices {
			addEndpointRow(&table, "SingleLogoutService", &idp.SingleLogoutServices[i])
		}
		for i := range idp.ArtifactResolutionServices {
			addIndexedRow(&table, "ArtifactResolutionService", &idp.ArtifactResolutionServices[i])
		}
	}
	if spd := descriptor.SPSSODescriptor; spd != nil {
		fmt.Fprintf(c.stdout, "Role: service provider, AuthnRequestsSigned %v, WantAssertionsSigned %v\n\n",
			spd.AuthnRequestsSigned, spd.WantAssertionsSigned)
		for i := range spd.SingleLogoutServices {
			addEndpointRow(&table, "SingleLogoutService", &spd.SingleLogoutServices[i])
		}
		for i := range spd.AssertionConsumerServices {
			addIndexedRow(&table, "AssertionConsumerService", &spd.AssertionConsumerServices[i])
		}
	}
	fmt.Fprint(c.stdout, table.AsBuffer().String())
	return nil
}

func addEndpointRow(table *asciitable.Table, service string, endpoint *metadata.Endpoint) {
	table.AddRow([]string{service, bindingName(endpoint.Binding), endpoint.Location, ""})
}

func addIndexedRow(table *asciitable.Table, service string, endpoint *metadata.IndexedEndpoint) {
	table.AddRow([]string{service, bindingName(endpoint.Binding), endpoint.Location, strconv.Itoa(endpoint.Index)})
}

// bindingName shortens well known binding URIs for table display.
func bindingName(binding string) string {
	switch binding {
	case protocol.BindingHTTPRedirect:
		return "HTTP-Redirect"
	case protocol.BindingHTTPPOST:
		return "HTTP-POST"
	case protocol.BindingHTTPArtifact:
		return "HTTP-Artifact"
	case protocol.BindingSOAP:
		return "SOAP"
	}
	return binding
}
