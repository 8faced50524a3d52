// roictl manages the persisted ROI registry from the command line: seed the
// stock layout, define or adjust regions, and inspect what is active.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/timberline/sortline/internal/config"
	"github.com/timberline/sortline/internal/geom"
	"github.com/timberline/sortline/internal/roi"
	"github.com/timberline/sortline/internal/store"
	"github.com/timberline/sortline/internal/version"
)

const usage = `usage: roictl <command> [flags]

commands:
  init        seed the registry with the stock two-camera layout
  define      add or replace an ROI definition
  list        print every definition in the registry
  activate    mark an ROI active
  deactivate  mark an ROI inactive
  update      change an ROI's rectangle
  delete      remove an ROI
  version     print build information

run 'roictl <command> -h' for the flags of each command.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init":
		runInit(args)
	case "define":
		runDefine(args)
	case "list":
		runList(args)
	case "activate":
		runSetActive(args, true)
	case "deactivate":
		runSetActive(args, false)
	case "update":
		runUpdate(args)
	case "delete":
		runDelete(args)
	case "version":
		fmt.Println("roictl " + version.String())
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "roictl: unknown command %q\n%s\n", cmd, usage)
		os.Exit(2)
	}
}

// registryFlags wires the flags shared by every subcommand.
func registryFlags(fs *flag.FlagSet) *string {
	return fs.String("registry", "", "registry path (.json or .db); defaults to the tuning config value")
}

// loadTuning reads the tuning file; a missing or broken one falls back to
// the built-in defaults.
func loadTuning() *config.TuningConfig {
	cfg, err := config.LoadTuningConfig(config.ResolveConfigPath())
	if err != nil {
		return config.EmptyTuningConfig()
	}
	return cfg
}

func openRegistry(path string) *roi.Registry {
	if path == "" {
		path = loadTuning().GetRegistryPath()
	}

	var (
		st  roi.Store
		err error
	)
	if strings.HasSuffix(path, ".db") {
		st, err = store.OpenSQLiteStore(path)
	} else {
		st = store.NewFileStore(path)
	}
	if err != nil {
		log.Fatalf("open registry store: %v", err)
	}

	reg, err := roi.NewRegistry(st)
	if err != nil {
		log.Fatalf("load registry: %v", err)
	}
	return reg
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	registry := registryFlags(fs)
	threshold := fs.Float64("threshold", loadTuning().GetDefaultOverlapThreshold(), "overlap threshold for the seeded ROIs")
	fs.Parse(args)

	reg := openRegistry(*registry)
	if reg.Count() > 0 {
		log.Fatalf("registry already holds %d definitions; refusing to seed over them", reg.Count())
	}

	doc := roi.DefaultDocument(*threshold)
	for camera, rois := range doc.Cameras {
		for id, def := range rois {
			if !reg.Define(camera, id, def.Rect, def.Name, def.OverlapThreshold) {
				log.Fatalf("seed %s/%s failed", camera, id)
			}
		}
	}
	fmt.Printf("seeded %d definitions\n", reg.Count())
}

func runDefine(args []string) {
	fs := flag.NewFlagSet("define", flag.ExitOnError)
	registry := registryFlags(fs)
	camera := fs.String("camera", "", "camera id")
	id := fs.String("id", "", "roi id")
	name := fs.String("name", "", "display name (defaults from the id)")
	threshold := fs.Float64("threshold", loadTuning().GetDefaultOverlapThreshold(), "overlap threshold in [0,1]")
	rect := fs.String("rect", "", "rectangle as x1,y1,x2,y2")
	fs.Parse(args)

	requireFlags(map[string]string{"camera": *camera, "id": *id, "rect": *rect})
	r := parseRect(*rect)

	reg := openRegistry(*registry)
	if !reg.Define(*camera, *id, r, *name, *threshold) {
		log.Fatalf("define %s/%s rejected: check rectangle and threshold", *camera, *id)
	}
	fmt.Printf("defined %s/%s %v\n", *camera, *id, r)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	registry := registryFlags(fs)
	fs.Parse(args)

	all := openRegistry(*registry).All()
	cameras := make([]string, 0, len(all))
	for camera := range all {
		cameras = append(cameras, camera)
	}
	sort.Strings(cameras)

	for _, camera := range cameras {
		ids := make([]string, 0, len(all[camera]))
		for id := range all[camera] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			def := all[camera][id]
			state := "inactive"
			if def.Active {
				state = "active"
			}
			fmt.Printf("%s/%s\t%s\t(%d,%d)-(%d,%d)\tthreshold=%.2f\t%q\n",
				camera, id, state,
				def.Rect.X1, def.Rect.Y1, def.Rect.X2, def.Rect.Y2,
				def.OverlapThreshold, def.Name)
		}
	}
}

func runSetActive(args []string, active bool) {
	verb := "deactivate"
	if active {
		verb = "activate"
	}
	fs := flag.NewFlagSet(verb, flag.ExitOnError)
	registry := registryFlags(fs)
	camera := fs.String("camera", "", "camera id")
	id := fs.String("id", "", "roi id")
	fs.Parse(args)

	requireFlags(map[string]string{"camera": *camera, "id": *id})

	reg := openRegistry(*registry)
	var ok bool
	if active {
		ok = reg.Activate(*camera, *id)
	} else {
		ok = reg.Deactivate(*camera, *id)
	}
	if !ok {
		log.Fatalf("%s: unknown roi %s/%s", verb, *camera, *id)
	}
	fmt.Printf("%sd %s/%s\n", verb, *camera, *id)
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	registry := registryFlags(fs)
	camera := fs.String("camera", "", "camera id")
	id := fs.String("id", "", "roi id")
	rect := fs.String("rect", "", "rectangle as x1,y1,x2,y2")
	fs.Parse(args)

	requireFlags(map[string]string{"camera": *camera, "id": *id, "rect": *rect})
	r := parseRect(*rect)

	reg := openRegistry(*registry)
	if !reg.UpdateRect(*camera, *id, r) {
		log.Fatalf("update %s/%s rejected: unknown roi or invalid rectangle", *camera, *id)
	}
	fmt.Printf("updated %s/%s to %v\n", *camera, *id, r)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	registry := registryFlags(fs)
	camera := fs.String("camera", "", "camera id")
	id := fs.String("id", "", "roi id")
	fs.Parse(args)

	requireFlags(map[string]string{"camera": *camera, "id": *id})

	reg := openRegistry(*registry)
	if !reg.Delete(*camera, *id) {
		log.Fatalf("delete: unknown roi %s/%s", *camera, *id)
	}
	fmt.Printf("deleted %s/%s\n", *camera, *id)
}

func requireFlags(values map[string]string) {
	for name, v := range values {
		if v == "" {
			log.Fatalf("-%s is required", name)
		}
	}
}

func parseRect(s string) geom.Rect {
	var r geom.Rect
	n, err := fmt.Sscanf(s, "%d,%d,%d,%d", &r.X1, &r.Y1, &r.X2, &r.Y2)
	if err != nil || n != 4 {
		log.Fatalf("invalid -rect %q: want x1,y1,x2,y2", s)
	}
	return r
}
