//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/docker/docker/api/types/build"
	"github.com/testcontainers/testcontainers-go"
)

// ImageEnv names a prebuilt image to use instead of building the Dockerfile.
const ImageEnv = "OPERA_E2E_IMAGE"

var imageName = ImageName

func TestMain(m *testing.M) {
	if img := os.Getenv(ImageEnv); img != "" {
		imageName = img
	} else if err := buildImage(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "building %s: %v\n", ImageName, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// buildImage builds the debug target of the root Dockerfile and keeps the
// image for every test of the run.
func buildImage(ctx context.Context) error {
	rootDir, err := projectRoot()
	if err != nil {
		return err
	}
	fmt.Printf("building %s from %s\n", ImageName, rootDir)
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:    rootDir,
				Dockerfile: "Dockerfile",
				KeepImage:  true,
				Repo:       "opera-debug",
				Tag:        "latest",
				BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
					opts.Target = "debug"
				},
			},
		},
		Started: false,
	})
	if err != nil {
		return err
	}
	return c.Terminate(ctx)
}
