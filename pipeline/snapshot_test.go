package pipeline

import "testing"

func TestExportImportRoundTrip(t *testing.T) {
	p := New("p1")
	p.Put(Dimensions{Namespace: "ns"}, "k", "v")
	p.Put(Dimensions{UserID: "u1"}, "k3d", "v3d")
	p.PutFile("f1", File{Path: "/a", Size: 1})

	snap := p.Export()

	restored := New("different-id")
	restored.Import(snap)

	if restored.ID() != "p1" {
		t.Fatalf("ID() after Import = %q, want p1", restored.ID())
	}
	if v, ok := restored.Get(Dimensions{Namespace: "ns"}, "k"); !ok || v != "v" {
		t.Fatalf("Get(ns) after Import = %v, %v, want v, true", v, ok)
	}
	if v, ok := restored.Get(Dimensions{UserID: "u1"}, "k3d"); !ok || v != "v3d" {
		t.Fatalf("Get(3D) after Import = %v, %v, want v3d, true", v, ok)
	}
	if _, ok := restored.GetFile("f1"); !ok {
		t.Fatal("GetFile(f1) after Import not found")
	}
}

func TestImportAcceptsSnapshotMissingData3DAndFiles(t *testing.T) {
	p := New("p1")
	snap := Snapshot{
		PipelineID: "legacy",
		Data:       map[string]map[string]interface{}{"ns": {"k": "v"}},
		// Data3D and Files intentionally nil — an older snapshot shape.
	}
	p.Import(snap)

	if v, ok := p.Get(Dimensions{Namespace: "ns"}, "k"); !ok || v != "v" {
		t.Fatalf("Get(ns) = %v, %v, want v, true", v, ok)
	}
	if _, ok := p.GetFile("anything"); ok {
		t.Fatal("GetFile found a value in a pipeline imported from a files-less snapshot")
	}
}

func TestExportIsADeepCopy(t *testing.T) {
	p := New("p1")
	p.Put(Dimensions{Namespace: "ns"}, "k", "v")
	snap := p.Export()

	snap.Data["ns"]["k"] = "mutated"

	if v, _ := p.Get(Dimensions{Namespace: "ns"}, "k"); v != "v" {
		t.Fatalf("mutating an exported snapshot changed the live pipeline: Get() = %v", v)
	}
}

func TestExportForFrontendTruncatesHistory(t *testing.T) {
	p := New("p1")
	dims := Dimensions{Namespace: "ns"}
	for i := 0; i < 5; i++ {
		p.Put(dims, "k", i)
	}

	snap := p.ExportForFrontend(2)
	if len(snap.History) != 2 {
		t.Fatalf("len(ExportForFrontend(2).History) = %d, want 2", len(snap.History))
	}
	if snap.History[1].NewValue != 4 {
		t.Fatalf("last history entry = %+v, want NewValue 4", snap.History[1])
	}
}

func TestExportForFrontendZeroMeansUnbounded(t *testing.T) {
	p := New("p1")
	dims := Dimensions{Namespace: "ns"}
	for i := 0; i < 3; i++ {
		p.Put(dims, "k", i)
	}
	snap := p.ExportForFrontend(0)
	if len(snap.History) != 3 {
		t.Fatalf("len(ExportForFrontend(0).History) = %d, want 3 (unbounded)", len(snap.History))
	}
}
