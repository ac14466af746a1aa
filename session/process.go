package session

import (
	"fmt"
	"io"
	"os/exec"
)

// process is a started stdio target with its three pipes.
type process struct {
	cmd *exec.Cmd

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func startProcess(path string, args []string) (*process, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// kill terminates the process if it is still running.
func (p *process) kill() {
	_ = p.cmd.Process.Kill()
}

// wait reaps the process. It must only be called once every pipe read has returned.
func (p *process) wait() (int, error) {
	err := p.cmd.Wait()
	if _, ok := err.(*exec.ExitError); ok {
		err = nil
	}
	return p.cmd.ProcessState.ExitCode(), err
}
