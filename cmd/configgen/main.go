package main

import (
	"flag"
	"log"

	"github.com/danmuck/htlvc/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "service":
		return "cmd/htlvcd/config.toml"
	case "profile":
		return "cmd/htlvcd/profile.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "service", "config kind: service|profile")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "service":
			if _, err := config.LoadServiceFile(path); err != nil {
				log.Fatal(err)
			}
		case "profile":
			p, err := config.LoadProfile(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("Profile %q declares %d tags", p.Name, len(p.Tags))
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
