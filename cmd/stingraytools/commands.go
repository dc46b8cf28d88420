package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/EchoTools/stingrayTools/pkg/manager"
	"github.com/EchoTools/stingrayTools/pkg/manifest"
	"github.com/EchoTools/stingrayTools/pkg/toc"
	"github.com/EchoTools/stingrayTools/pkg/unit"
)

var typeFlag = &cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Entry type: a type name such as unit or texture, or a hex type id"}

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "List the entries of an archive",
	ArgsUsage: "<archive>",
	Flags:     []cli.Flag{typeFlag},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() != 1 {
			return errors.New("list requires an archive path")
		}
		a, err := e.mgr.LoadArchive(c.Context, c.Args().First(), true, toc.IsPatchPath(c.Args().First()))
		if err != nil {
			return err
		}
		entries := a.Entries()
		if s := c.String("type"); s != "" {
			typeID, err := parseTypeID(e.reg, s)
			if err != nil {
				return err
			}
			entries = a.EntriesOfType(typeID)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tFILE ID\tNAME\tTOC\tGPU\tSTREAM")
		var total uint64
		for _, en := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				typeLabel(e.reg, en.TypeID), en.FileID, e.reg.FriendlyName(en.FileID),
				humanize.Bytes(uint64(en.TocDataSize)),
				humanize.Bytes(uint64(en.GpuResourceSize)),
				humanize.Bytes(uint64(en.StreamSize)))
			total += uint64(en.TocDataSize) + uint64(en.GpuResourceSize) + uint64(en.StreamSize)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%s: %s entries, %s\n", e.mgr.ArchiveLabel(a.Path), humanize.Comma(int64(len(entries))), humanize.Bytes(total))
		return nil
	}),
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "Find the archives of the game directory holding an entry",
	ArgsUsage: "<file id>",
	Flags: []cli.Flag{
		typeFlag,
		&cli.StringSliceFlag{Name: "package", Usage: "Also search a packed index file, named after its archive"},
	},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() != 1 || c.String("type") == "" {
			return errors.New("search requires a file id and --type")
		}
		if e.cfg.GamePath == "" {
			return errors.New("search requires a game path, set game_path or --game-path")
		}
		fileID, err := parseFileID(c.Args().First())
		if err != nil {
			return err
		}
		typeID, err := parseTypeID(e.reg, c.String("type"))
		if err != nil {
			return err
		}
		if err := e.mgr.BuildSearchIndex(c.Context, e.cfg.GamePath); err != nil {
			return err
		}
		for _, path := range c.StringSlice("package") {
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "read package index")
			}
			if err := e.mgr.AddPackageIndex(filepath.Base(path), data); err != nil {
				return err
			}
		}

		found := 0
		for _, x := range e.mgr.SearchIndex().Indexes() {
			if x.HasEntry(fileID, typeID) {
				fmt.Printf("%s\t%s\n", x.Name, e.mgr.ArchiveLabel(x.Path))
				found++
			}
		}
		e.log.WithFields(logrus.Fields{
			"archives": e.mgr.SearchIndex().Len(),
			"matches":  found,
		}).Info("search complete")
		return nil
	}),
}

var exportCommand = &cli.Command{
	Name:      "export",
	Usage:     "Write the entries of an archive or patch to a <type>/<file> tree",
	ArgsUsage: "<archive>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "Output directory"},
		&cli.StringSliceFlag{Name: "type", Aliases: []string{"t"}, Usage: "Only export these types"},
		&cli.BoolFlag{Name: "decimal-names", Usage: "Use decimal format for filenames (default is hex)"},
		&cli.BoolFlag{Name: "dds", Usage: "Also write textures as .dds files"},
	},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() != 1 {
			return errors.New("export requires an archive path")
		}
		var types []uint64
		for _, s := range c.StringSlice("type") {
			id, err := parseTypeID(e.reg, s)
			if err != nil {
				return err
			}
			types = append(types, id)
		}
		a, err := e.mgr.LoadArchive(c.Context, c.Args().First(), false, false)
		if err != nil {
			return err
		}
		n, err := manifest.Export(a, c.String("output"),
			manifest.WithTypeFilter(types),
			manifest.WithDecimalNames(c.Bool("decimal-names")),
			manifest.WithDDS(c.Bool("dds")),
		)
		if err != nil {
			return errors.Wrap(err, "export")
		}
		e.log.WithFields(logrus.Fields{"entries": n, "output": c.String("output")}).Info("export complete")
		return nil
	}),
}

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "Add a <type>/<file> tree to a patch of an archive and write the patch",
	ArgsUsage: "<archive>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "Input directory, .dds siblings replace texture pixels"},
		&cli.StringFlag{Name: "patch", TakesFile: true, Usage: "Existing patch to extend instead of creating the next one"},
		&cli.StringFlag{Name: "name", Usage: "Label of a new patch"},
		&cli.BoolFlag{Name: "override", Usage: "Replace entries already in the patch"},
		&cli.BoolFlag{Name: "decimal-names", Usage: "Input filenames are decimal"},
	},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() != 1 {
			return errors.New("import requires an archive path")
		}
		if err := openPatch(c, e, c.Args().First()); err != nil {
			return err
		}
		n, err := manifest.Import(c.String("input"), e.mgr.ActivePatch, c.Bool("override"), c.Bool("decimal-names"))
		if err != nil {
			return errors.Wrap(err, "import")
		}
		if err := e.mgr.PatchActiveArchive(); err != nil {
			return err
		}
		e.cfg.SearchPath = c.String("input")
		if err := e.cfg.Save(c.String("config")); err != nil {
			e.log.WithError(err).Warn("failed to save config")
		}
		e.log.WithFields(logrus.Fields{"entries": n, "patch": e.mgr.ActivePatch.Path}).Info("import complete")
		return nil
	}),
}

var duplicateCommand = &cli.Command{
	Name:      "duplicate",
	Usage:     "Copy an entry into a patch under a new file id",
	ArgsUsage: "<archive> <file id> [new file id]",
	Flags: []cli.Flag{
		typeFlag,
		&cli.StringFlag{Name: "patch", TakesFile: true, Usage: "Existing patch to extend instead of creating the next one"},
		&cli.StringFlag{Name: "name", Usage: "Label of a new patch"},
	},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() < 2 || c.String("type") == "" {
			return errors.New("duplicate requires an archive path, a file id and --type")
		}
		fileID, err := parseFileID(c.Args().Get(1))
		if err != nil {
			return err
		}
		typeID, err := parseTypeID(e.reg, c.String("type"))
		if err != nil {
			return err
		}
		if err := openPatch(c, e, c.Args().First()); err != nil {
			return err
		}

		searchAll, err := ensureSearch(c, e)
		if err != nil {
			return err
		}
		src, err := e.mgr.GetEntry(fileID, typeID, manager.Lookup{SearchAll: searchAll})
		if err != nil {
			return err
		}
		if src == nil {
			return errors.Errorf("entry %d of type %s not found", fileID, typeLabel(e.reg, typeID))
		}
		e.mgr.Copy(src)
		var newID uint64
		if c.NArg() > 2 {
			if newID, err = parseFileID(c.Args().Get(2)); err != nil {
				return err
			}
		}
		pasted, err := e.mgr.Paste(newID == 0, newID)
		if err != nil {
			return err
		}
		if err := e.mgr.PatchActiveArchive(); err != nil {
			return err
		}
		for _, p := range pasted {
			fmt.Printf("%d\n", p.FileID)
		}
		return nil
	}),
}

var meshCommand = &cli.Command{
	Name:      "mesh",
	Usage:     "Describe a unit, optionally rebuilding its LODs into a patch",
	ArgsUsage: "<archive> <file id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "auto-lods", Usage: "Replace every LOD with a copy of LOD0 and save the unit into a patch"},
		&cli.StringFlag{Name: "patch", TakesFile: true, Usage: "Existing patch to extend instead of creating the next one"},
		&cli.StringFlag{Name: "name", Usage: "Label of a new patch"},
	},
	Action: action(func(c *cli.Context, e *env) error {
		if c.NArg() != 2 {
			return errors.New("mesh requires an archive path and a file id")
		}
		fileID, err := parseFileID(c.Args().Get(1))
		if err != nil {
			return err
		}
		if _, err := e.mgr.LoadArchive(c.Context, c.Args().First(), true, false); err != nil {
			return err
		}
		searchAll, err := ensureSearch(c, e)
		if err != nil {
			return err
		}
		if err := e.mgr.Load(fileID, toc.UnitID, false, searchAll); err != nil {
			return err
		}
		en, err := e.mgr.GetEntry(fileID, toc.UnitID, manager.Lookup{})
		if err != nil {
			return err
		}
		if en == nil {
			return errors.Errorf("unit %d not found", fileID)
		}
		mesh, ok := en.Model.(*unit.Mesh)
		if !ok {
			return errors.Errorf("unit %d did not decode to a mesh", fileID)
		}
		describeMesh(e, mesh)

		if !c.Bool("auto-lods") {
			return nil
		}
		if err := openPatch(c, e, c.Args().First()); err != nil {
			return err
		}
		n := mesh.ApplyAutoLODs()
		if err := e.mgr.Save(fileID, toc.UnitID); err != nil {
			return err
		}
		if err := e.mgr.PatchActiveArchive(); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"replaced": n, "patch": e.mgr.ActivePatch.Path}).Info("auto LODs applied")
		return nil
	}),
}

func describeMesh(e *env, mesh *unit.Mesh) {
	fmt.Printf("unit %s: %d sub-meshes, %d bone infos, %d lights\n",
		e.reg.FriendlyName(mesh.NameHash), len(mesh.RawMeshes), len(mesh.BoneInfos), len(mesh.Lights.Lights))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MESH ID\tLOD\tKIND\tVERTICES\tTRIANGLES\tMATERIALS\tUVS")
	for _, raw := range mesh.RawMeshes {
		kind := "mesh"
		switch {
		case raw.IsCullingBody():
			kind = "culling"
		case raw.IsLod():
			kind = "lod"
		}
		fmt.Fprintf(w, "%08x\t%d\t%s\t%s\t%s\t%d\t%d\n",
			raw.MeshID, raw.LodIndex, kind,
			humanize.Comma(int64(len(raw.Positions))),
			humanize.Comma(int64(len(raw.Indices))),
			len(raw.Materials), len(raw.UVs))
	}
	w.Flush()
	for _, warning := range mesh.Warnings {
		e.log.Warn(warning)
	}
}

// openPatch loads archive as the active archive and makes a patch active:
// the one named by --patch, or a new one named --name.
func openPatch(c *cli.Context, e *env, archive string) error {
	if _, err := e.mgr.LoadArchive(c.Context, archive, true, false); err != nil {
		return err
	}
	if p := c.String("patch"); p != "" {
		if _, err := e.mgr.LoadArchive(c.Context, p, true, true); err != nil {
			return err
		}
		return nil
	}
	_, err := e.mgr.CreatePatchFromActive(c.String("name"))
	return err
}

// ensureSearch builds the search index once when a game path is known and
// reports whether lookups may fall back to it.
func ensureSearch(c *cli.Context, e *env) (bool, error) {
	if e.cfg.GamePath == "" {
		return false, nil
	}
	if e.mgr.SearchIndex() == nil {
		if err := e.mgr.BuildSearchIndex(c.Context, e.cfg.GamePath); err != nil {
			return false, err
		}
	}
	return true, nil
}
