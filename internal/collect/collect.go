// Package collect bundles run artifacts, logs, and host diagnostics into a
// zip archive for sharing benchmark results.
package collect

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vpnlab/tunnelbench/internal/version"
)

// Archive creates zipName with everything under artifactDir (pcap, JSON,
// capture logs), the site config if present, and tool/host diagnostics.
func Archive(zipName, artifactDir string) error {
	zipFile, err := os.Create(zipName)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	if err := addDirToZip(zw, artifactDir); err != nil {
		return fmt.Errorf("failed to archive artifacts: %w", err)
	}

	if _, err := os.Stat("tunnelbench.json"); err == nil {
		_ = addFileToZip(zw, "tunnelbench.json") // Non-fatal
	}

	if err := addStringToZip(zw, "version.txt", version.Version+"\n"); err != nil {
		return err
	}
	return addStringToZip(zw, "diagnostics.txt", collectDiagnostics())
}

// collectDiagnostics gathers tool versions and host info. Tools that are
// not installed just report their error text.
func collectDiagnostics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "os: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if host, err := os.Hostname(); err == nil {
		fmt.Fprintf(&b, "host: %s\n", host)
	}
	for _, probe := range [][]string{
		{"uname", "-a"},
		{"tcpdump", "--version"},
		{"iperf3", "--version"},
		{"wg", "--version"},
		{"ipsec", "--version"},
	} {
		fmt.Fprintf(&b, "\n$ %s\n", strings.Join(probe, " "))
		var out bytes.Buffer
		cmd := exec.Command(probe[0], probe[1:]...)
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(&b, "(%v)\n", err)
		}
		b.Write(out.Bytes())
	}
	return b.String()
}

func addFileToZip(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(filepath.ToSlash(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func addDirToZip(zw *zip.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := addFileToZip(zw, path); err != nil {
			// Non-fatal, just skip
			continue
		}
	}
	return nil
}

func addStringToZip(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, content)
	return err
}
