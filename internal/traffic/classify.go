package traffic

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

var (
	awdlPrefixes = []string{"awdl", "p2p", "llw"}
	wwanPrefixes = []string{"wwan", "rmnet", "ccmni", "pdp_ip"}
)

// Classifier decides which interface class a network interface belongs to.
// Explicit overrides take precedence over name prefixes and sysfs metadata.
type Classifier struct {
	root      string
	overrides map[string]Class
}

// NewClassifier creates a classifier reading interface metadata under root.
func NewClassifier(root string, overrides map[string]Class) *Classifier {
	o := make(map[string]Class, len(overrides))
	for name, class := range overrides {
		o[name] = class
	}
	return &Classifier{root: root, overrides: o}
}

// Classify returns the class of the named interface, or ClassNone when the
// interface is not tracked.
func (c *Classifier) Classify(name string) Class {
	if class, ok := c.overrides[name]; ok {
		return class
	}
	if name == "lo" {
		return ClassNone
	}
	if hasAnyPrefix(name, awdlPrefixes) {
		return ClassAWDL
	}

	devType := c.devType(name)
	if devType == "wlan" || c.exists(name, "wireless") || c.exists(name, "phy80211") {
		return ClassWiFi
	}
	if devType == "wwan" || hasAnyPrefix(name, wwanPrefixes) {
		return ClassWWAN
	}
	return ClassNone
}

// devType returns the DEVTYPE value from the interface's uevent file.
func (c *Classifier) devType(name string) string {
	f, err := os.Open(filepath.Join(c.root, name, "uevent"))
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "DEVTYPE="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (c *Classifier) exists(name, entry string) bool {
	_, err := os.Stat(filepath.Join(c.root, name, entry))
	return err == nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
