package ondevice

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/local"
)

// RuntimeSpec describes one runtime invocation.
type RuntimeSpec struct {
	Bin         string
	ModelPath   string
	ContextSize int
	BatchSize   int
	Threads     int
	Sampling    SamplingParams
}

// ModelFactory builds a model for spec. It is called once per completion
// because the local adapter accumulates arguments across calls.
type ModelFactory func(spec RuntimeSpec) (llms.Model, error)

// LocalRuntime runs spec.Bin as a llama.cpp CLI through langchaingo's local
// adapter. The prompt is appended as the final argument.
func LocalRuntime(spec RuntimeSpec) (llms.Model, error) {
	if strings.ContainsAny(spec.ModelPath, " \t") {
		return nil, fmt.Errorf("model path must not contain whitespace: %q", spec.ModelPath)
	}
	return local.New(
		local.WithBin(spec.Bin),
		local.WithArgs(strings.Join(runtimeArgs(spec), " ")),
	)
}

func runtimeArgs(spec RuntimeSpec) []string {
	args := []string{"-m", spec.ModelPath}
	if spec.ContextSize > 0 {
		args = append(args, "-c", fmt.Sprint(spec.ContextSize))
	}
	if spec.BatchSize > 0 {
		args = append(args, "-b", fmt.Sprint(spec.BatchSize))
	}
	if spec.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(spec.Threads))
	}
	if spec.Sampling.MaxTokens > 0 {
		args = append(args, "-n", fmt.Sprint(spec.Sampling.MaxTokens))
	}
	args = append(args,
		"--temp", fmt.Sprint(spec.Sampling.Temperature),
		"--top-p", fmt.Sprint(spec.Sampling.TopP),
	)
	for _, stop := range spec.Sampling.Stop {
		if stop != "" && !strings.ContainsAny(stop, " \t`") {
			args = append(args, "-r", stop)
		}
	}
	return append(args, "--no-display-prompt", "-p")
}
