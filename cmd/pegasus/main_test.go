package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XorTroll/pegasus/cpu/stub"
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/kernel"
	"github.com/XorTroll/pegasus/svc"
)

func TestDriveThreadRunsDemoProgramToExit(t *testing.T) {
	k := kernel.NewKernel()
	limit := k.NewResourceLimit()
	p := k.NewProcess("demo", domain.DefaultCapabilities(), limit)

	cpuCtx := stub.New(demoProgram, 0, 0, 0x1000)
	main, res := p.NewThread(44, 0, 1, cpuCtx, "demo-main")
	require.True(t, res.IsSuccess())

	loader := k.NewHostThread("loader")
	require.True(t, p.Start(loader).IsSuccess())

	driveThread(k, p, main, svc.NewTable())

	assert.Equal(t, kernel.ProcessTerminated, p.State())
}
