package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readDecisions collects decision lines from path, or from args when path is
// empty. Blank lines and lines starting with # are skipped.
func readDecisions(path string, args []string, autoInit bool) ([]string, error) {
	var lines []string
	if autoInit {
		lines = append(lines, "init", "observe")
	}
	if strings.TrimSpace(path) == "" {
		for _, a := range args {
			if a = strings.TrimSpace(a); a != "" {
				lines = append(lines, a)
			}
		}
		return lines, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lines, nil
}

// parseTargets reads "Type=id,id;Type=id" into type -> ids.
func parseTargets(s string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, part := range splitList(s, ";") {
		typ, ids, ok := strings.Cut(part, "=")
		typ = strings.TrimSpace(typ)
		if !ok || typ == "" {
			return nil, fmt.Errorf("bad target %q (want Type=id,...)", part)
		}
		list := splitList(ids, ",")
		if len(list) == 0 {
			return nil, fmt.Errorf("target %q has no ids", typ)
		}
		out[typ] = append(out[typ], list...)
	}
	return out, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
