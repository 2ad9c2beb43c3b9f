package keyfile_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/beacond/internal/keyfile"
	"github.com/srg/beacond/internal/payload"
)

type KeyfileTestSuite struct {
	suitelib.Suite

	key     []byte
	encoded string
}

func (suite *KeyfileTestSuite) SetupTest() {
	suite.key = make([]byte, payload.KeySize)
	for i := range suite.key {
		suite.key[i] = byte(0xA0 + i)
	}
	suite.encoded = base64.StdEncoding.EncodeToString(suite.key)
}

func (suite *KeyfileTestSuite) writeKeyFile(content string) string {
	path := filepath.Join(suite.T().TempDir(), "master.key")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (suite *KeyfileTestSuite) TestLoadValidKey() {
	path := suite.writeKeyFile(suite.encoded + "\n")

	key, err := keyfile.Load(path)
	suite.NoError(err)
	suite.Equal(suite.key, key)
}

func (suite *KeyfileTestSuite) TestLoadMissingFile() {
	_, err := keyfile.Load(filepath.Join(suite.T().TempDir(), "nope.key"))
	suite.ErrorIs(err, os.ErrNotExist)
}

func (suite *KeyfileTestSuite) TestDecode() {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", suite.encoded, false},
		{"surrounding whitespace", "  " + suite.encoded + "\r\n", false},
		{"not base64", "!!definitely not base64!!", true},
		{"wrong decoded length", base64.StdEncoding.EncodeToString([]byte("short")), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			key, err := keyfile.Decode(tt.input)
			if tt.wantErr {
				suite.Error(err)
			} else {
				suite.NoError(err)
				suite.Equal(suite.key, key)
			}
		})
	}
}

// TestKeyfileTestSuite runs the test suite using testify/suite
func TestKeyfileTestSuite(t *testing.T) {
	suitelib.Run(t, new(KeyfileTestSuite))
}
