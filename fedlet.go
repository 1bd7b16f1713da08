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

// Package fedlet holds constants and the error taxonomy shared by the
// SAMLv2 service provider packages under lib/.
package fedlet

const (
	// Version is the semantic version of the library.
	Version = "1.0.0"

	// ComponentKey is the structured logging attribute key that carries
	// the component name.
	ComponentKey = "component"

	// ComponentSP is the service provider controller.
	ComponentSP = "sp"

	// ComponentMetadata is the metadata store and file repository.
	ComponentMetadata = "metadata"

	// ComponentArtifact is the SOAP artifact resolver.
	ComponentArtifact = "artifact"

	// ComponentCLI is the fedletctl command line tool.
	ComponentCLI = "fedletctl"
)
