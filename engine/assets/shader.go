package assets

import (
	"os"

	cerrors "github.com/cockroachdb/errors"
)

// LoadShaderBytecode reads a compiled SPIR-V blob. The word-alignment
// check catches truncated files and accidental loads of GLSL source.
func LoadShaderBytecode(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "reading shader %q", path)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, cerrors.Newf("assets: shader %q is not SPIR-V bytecode (%d bytes)", path, len(code))
	}
	return code, nil
}
