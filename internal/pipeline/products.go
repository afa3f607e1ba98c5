package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fastpdi/dpp/internal/cubeio"
	"github.com/fastpdi/dpp/internal/domain"
)

// stokesPlanes names the planes of a Stokes product cube, in storage order.
var stokesPlanes = []string{"I", "Q", "U", "pol_frac", "pol_angle"}

// WriteStokes persists a Stokes product as a five-plane cube.
func WriteStokes(path, name string, product *domain.StokesProduct) error {
	cube := domain.NewCube(len(stokesPlanes), product.Height, product.Width)
	cube.Header = domain.Header{
		Name:   name,
		Stage:  string(domain.StagePolarimetry),
		Planes: append([]string(nil), stokesPlanes...),
	}
	for i, plane := range [][]float64{product.I, product.Q, product.U, product.PolFrac, product.PolAngle} {
		copy(cube.Frame(i), plane)
	}
	return cubeio.Write(path, cube)
}

// ReadStokes loads a Stokes product written by WriteStokes.
func ReadStokes(path string) (*domain.StokesProduct, error) {
	cube, err := cubeio.Read(path)
	if err != nil {
		return nil, err
	}
	product := &domain.StokesProduct{
		Width:  cube.Width,
		Height: cube.Height,
	}
	planes := [][]float64{nil, nil, nil, nil, nil}
	for i := 0; i < cube.NFrames && i < len(planes); i++ {
		planes[i] = append([]float64(nil), cube.Frame(i)...)
	}
	product.I, product.Q, product.U, product.PolFrac, product.PolAngle =
		planes[0], planes[1], planes[2], planes[3], planes[4]
	return product, nil
}

// writeReport persists the run report as JSON with temp-write then rename.
func writeReport(path string, report *domain.RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
