package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/session"
)

// specFlags binds the session spec fields onto a command. Flags left at
// their zero value keep the profile or default value, so the effective
// precedence is defaults < profile < explicit flags.
type specFlags struct {
	owner            string
	profile          string
	image            string
	gpuProduct       string
	gpuCount         int64
	cpuRequest       string
	cpuLimit         string
	memoryRequest    string
	memoryLimit      string
	scratchMountPath string
	scratchSizeLimit string
	idleTimeout      string
	command          []string
	labels           map[string]string
}

func (f *specFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.owner, "owner", getEnvOrDefault("DIBS_OWNER", ""), "Owner recorded on the session")
	flags.StringVar(&f.profile, "profile", getEnvOrDefault("DIBS_PROFILE", ""), "SessionProfile to build the session from")
	flags.StringVar(&f.image, "image", "", "Container image")
	flags.StringVar(&f.gpuProduct, "gpu-product", "", "GPU product label value to pin (nvidia.com/gpu.product)")
	flags.Int64Var(&f.gpuCount, "gpus", 0, "Number of GPUs to reserve")
	flags.StringVar(&f.cpuRequest, "cpu-request", "", "CPU request")
	flags.StringVar(&f.cpuLimit, "cpu-limit", "", "CPU limit")
	flags.StringVar(&f.memoryRequest, "memory-request", "", "Memory request")
	flags.StringVar(&f.memoryLimit, "memory-limit", "", "Memory limit")
	flags.StringVar(&f.scratchMountPath, "scratch-path", "", "Mount path of the emptyDir scratch volume")
	flags.StringVar(&f.scratchSizeLimit, "scratch-size", "", "Size limit of the scratch volume, e.g. 50Gi")
	flags.StringVar(&f.idleTimeout, "idle-timeout", "", "Per-session idle timeout, e.g. 8h")
	flags.StringSliceVar(&f.command, "command", nil, "Container command (comma separated)")
	flags.StringToStringVar(&f.labels, "label", nil, "Extra pod labels as key=value")
}

// buildSpec resolves the session spec for a command invocation: house
// defaults first, then the named profile, then whatever flags were set.
// Looking up a profile needs a cluster connection; pass nil to dial one
// on demand. Everything else is resolved offline.
func (f *specFlags) buildSpec(cmd *cobra.Command, name string, profiles *kubernetes.ProfileClient) (session.Spec, error) {
	spec := session.DefaultSpec()
	spec.Name = name
	spec.Namespace = namespace
	spec.Owner = f.owner

	if f.profile != "" {
		if profiles == nil {
			var err error
			if _, profiles, err = clusterClients(); err != nil {
				return session.Spec{}, err
			}
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		profile, err := profiles.GetProfile(ctx, f.profile)
		if err != nil {
			return session.Spec{}, err
		}
		spec.ApplyProfile(profile)
	}

	f.apply(cmd, &spec)
	return spec, nil
}

// apply copies the flags the user actually set onto the spec.
func (f *specFlags) apply(cmd *cobra.Command, spec *session.Spec) {
	flags := cmd.Flags()
	if flags.Changed("image") {
		spec.Image = f.image
	}
	if flags.Changed("gpu-product") {
		spec.GPUProduct = f.gpuProduct
	}
	if flags.Changed("gpus") {
		spec.GPUCount = f.gpuCount
	}
	if flags.Changed("cpu-request") {
		spec.CPURequest = f.cpuRequest
	}
	if flags.Changed("cpu-limit") {
		spec.CPULimit = f.cpuLimit
	}
	if flags.Changed("memory-request") {
		spec.MemoryRequest = f.memoryRequest
	}
	if flags.Changed("memory-limit") {
		spec.MemoryLimit = f.memoryLimit
	}
	if flags.Changed("scratch-path") {
		spec.ScratchMountPath = f.scratchMountPath
	}
	if flags.Changed("scratch-size") {
		spec.ScratchSizeLimit = f.scratchSizeLimit
	}
	if flags.Changed("idle-timeout") {
		spec.IdleTimeout = f.idleTimeout
	}
	if flags.Changed("command") {
		spec.Command = append([]string(nil), f.command...)
	}
	if len(f.labels) > 0 {
		if spec.ExtraLabels == nil {
			spec.ExtraLabels = map[string]string{}
		}
		for k, v := range f.labels {
			spec.ExtraLabels[k] = v
		}
	}
}
