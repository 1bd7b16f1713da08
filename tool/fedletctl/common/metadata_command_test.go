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
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/vijayoommen/Fedlet/lib/samltest"
)

// writeConfigDir lays a fixture configuration directory out on disk
// the way LoadDirectory expects it, key pair files included.
func writeConfigDir(t *testing.T, providers *samltest.Providers) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, raw []byte) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o600))
	}
	write("sp.xml", providers.SPMetadata())
	write("sp-extended.xml", providers.SPExtended(nil))
	write("idp.xml", providers.IDPMetadata())
	write("fedlet.cot", providers.COT())
	write(samltest.KeyAlias+".crt", pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: providers.SP.Cert.Raw,
	}))
	write(samltest.KeyAlias+".key", pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(providers.SP.Key),
	}))
	return dir
}

func TestMetadataExport(t *testing.T) {
	t.Parallel()

	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	dir := writeConfigDir(t, providers)

	env, err := NewEnvironment(&GlobalCLIFlags{ConfigDir: dir})
	require.NoError(t, err)

	var stdout bytes.Buffer
	cmd := &MetadataCommand{sign: true, stdout: &stdout}
	require.NoError(t, cmd.Export(env))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(stdout.Bytes()))
	root := doc.Root()
	require.Equal(t, samltest.SPEntityID, root.SelectAttrValue("entityID", ""))
	require.NotNil(t, root.FindElement("./Signature"))
	cert := root.FindElement("//KeyDescriptor[@use='signing']//X509Certificate")
	require.NotNil(t, cert)
	require.Equal(t, providers.SP.CertBase64(), cert.Text())
}

func TestNewEnvironmentMissingKeys(t *testing.T) {
	t.Parallel()

	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	dir := writeConfigDir(t, providers)
	require.NoError(t, os.Remove(filepath.Join(dir, samltest.KeyAlias+".key")))

	_, err = NewEnvironment(&GlobalCLIFlags{ConfigDir: dir})
	require.Error(t, err)
}

func TestMetadataInspect(t *testing.T) {
	t.Parallel()

	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "idp.xml")
	require.NoError(t, os.WriteFile(file, providers.IDPMetadata(), 0o600))

	var stdout bytes.Buffer
	cmd := &MetadataCommand{inspectFile: file, stdout: &stdout}
	require.NoError(t, cmd.Inspect())

	out := stdout.String()
	require.Contains(t, out, "Entity ID: "+samltest.IDPEntityID)
	require.Contains(t, out, "identity provider")
	require.Contains(t, out, "HTTP-Redirect")
	require.Contains(t, out, samltest.IDPSSOURL)
	require.Contains(t, out, "ArtifactResolutionService")
}

func TestMetadataInspectMalformed(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "bad.xml")
	require.NoError(t, os.WriteFile(file, []byte("not metadata"), 0o600))

	cmd := &MetadataCommand{inspectFile: file, stdout: &bytes.Buffer{}}
	require.Error(t, cmd.Inspect())
}
