package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/security/noise"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

func TestModule(t *testing.T) {
	var st pkgif.SecureTransport
	app := fxtest.New(t,
		identity.Module(),
		Module(),
		fx.Populate(&st),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, noise.ID, st.ID())
}
