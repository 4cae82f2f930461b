package iprofile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
	"github.com/gsoxley/OpenMDAO/internal/qualname"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/remote"
	"github.com/gsoxley/OpenMDAO/internal/shipper"
	"github.com/gsoxley/OpenMDAO/internal/storageprovider"
	"github.com/gsoxley/OpenMDAO/internal/storageutil"
	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

// Close stops every session, merges their call trees into one profile
// and writes the raw trace file for this process. A poisoned session
// aborts the merge, nothing is written in that case. The configured
// shipping legs (object storage, collector, Kafka) run after the local
// write and their failures never undo it.
func (p *Profiler) Close(ctx context.Context) error {
	p.mu.Lock()
	sessions := make([]*Session, len(p.sessions))
	copy(sessions, p.sessions)
	p.mu.Unlock()

	tree := nodetree.NewTree()
	for _, s := range sessions {
		if err := s.Stop(); err != nil {
			return err
		}
		mergeSession(tree, s.tree)
	}
	if err := childTimes(tree); err != nil {
		return err
	}
	names, err := p.displayNames(tree)
	if err != nil {
		return err
	}
	records, err := traceRecords(tree, names)
	if err != nil {
		return err
	}

	data, err := rawtrace.Marshal(&rawtrace.Trace{Records: records})
	if err != nil {
		return err
	}
	name := rawtrace.FileName(p.config.Prefix, p.config.Rank)
	if err := os.WriteFile(filepath.Join(p.config.Dir, name), data, 0o644); err != nil {
		return err
	}
	return p.ship(ctx, name, data, len(records))
}

// mergeSession folds one session tree into the run tree. Times and
// counts add up, so the merged root carries the sum of the session
// totals. The first recorded owner of a path wins.
func mergeSession(dst, src *nodetree.Tree) {
	for _, n := range src.Nodes() {
		node := dst.Upsert(n.Name)
		node.Time += n.Time
		node.Count += n.Count
		if node.Obj == nil {
			node.Obj = n.Obj
		}
		if n.RootMarker {
			node.RootMarker = true
		}
	}
}

func childTimes(tree *nodetree.Tree) error {
	for _, node := range tree.Nodes() {
		segments := callpath.Split(node.Name)
		if len(segments) < 2 {
			continue
		}
		parent, ok := tree.Get(callpath.Join(segments[:len(segments)-1]))
		if !ok {
			return fmt.Errorf("iprofile: %w: %q has no parent in the call tree", errorutil.ErrDataIntegrity, node.Name)
		}
		parent.ChildTime += node.Time
	}
	return nil
}

// displayNames maps every raw call token of the tree to its display
// form. Stack discipline guarantees each token shows up as the trailing
// segment of some path, so only trailing segments are resolved.
func (p *Profiler) displayNames(tree *nodetree.Tree) (map[string]string, error) {
	namer := qualname.NewNamer(p.Resolver)
	names := map[string]string{
		callpath.Total:  callpath.Total,
		callpath.Parent: callpath.Parent,
	}
	for _, node := range tree.Nodes() {
		last := callpath.Last(node.Name)
		if _, ok := names[last]; ok {
			continue
		}
		tok, err := callpath.ParseToken(last)
		if err != nil {
			return nil, fmt.Errorf("iprofile: %w: %v", errorutil.ErrDataIntegrity, err)
		}
		var (
			pathname    string
			hasPathname bool
		)
		if pn, ok := node.Obj.(Pathnamer); ok {
			pathname = pn.Pathname()
			hasPathname = true
		}
		name, err := namer.Name(tok, pathname, hasPathname)
		if err != nil {
			return nil, err
		}
		names[last] = callpath.Clean(name)
	}
	return names, nil
}

// traceRecords lays out the rows of the raw trace file: every node in
// recording order, then one synthetic $parent row per node with child
// time, carrying the time exclusive to that node. Partition layouts sum
// children to size a parent, the $parent leaf keeps those proportions
// honest.
func traceRecords(tree *nodetree.Tree, names map[string]string) ([]rawtrace.Record, error) {
	nodes := tree.Nodes()
	records := make([]rawtrace.Record, 0, len(nodes))
	for _, node := range nodes {
		records = append(records, rawtrace.Record{Path: node.Name, Count: node.Count, Time: node.Time})
	}
	for _, node := range nodes {
		if node.ChildTime <= 0 {
			continue
		}
		records = append(records, rawtrace.Record{
			Path:  node.Name + callpath.Sep + callpath.Parent,
			Count: 1,
			Time:  node.Time - node.ChildTime,
		})
	}
	for i := range records {
		path, err := displayPath(records[i].Path, names)
		if err != nil {
			return nil, err
		}
		records[i].Path = path
	}
	return records, nil
}

func displayPath(path string, names map[string]string) (string, error) {
	segments := callpath.Split(path)
	for i, segment := range segments {
		name, ok := names[segment]
		if !ok {
			return "", fmt.Errorf("iprofile: %w: no display name for call %q", errorutil.ErrDataIntegrity, segment)
		}
		segments[i] = name
	}
	return callpath.Join(segments), nil
}

func (p *Profiler) ship(ctx context.Context, name string, data []byte, records int) error {
	var errs []error
	if p.config.BucketURL != "" {
		if err := p.upload(ctx, name, data); err != nil {
			errs = append(errs, fmt.Errorf("iprofile: uploading %s: %w", name, err))
		}
	}
	if p.config.CollectorURL != "" {
		if err := p.push(ctx, name, data); err != nil {
			errs = append(errs, fmt.Errorf("iprofile: pushing %s to the collector: %w", name, err))
		}
	}
	if len(p.config.KafkaBrokers) > 0 {
		if err := p.notify(ctx, name, records); err != nil {
			errs = append(errs, fmt.Errorf("iprofile: notifying about %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Profiler) upload(ctx context.Context, name string, data []byte) error {
	bucket, err := storageprovider.OpenBucket(ctx, p.config.BucketURL)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return storageutil.CompressedCopy(ctx, bucket, p.RunID()+"/"+name, bytes.NewReader(data))
}

func (p *Profiler) push(ctx context.Context, name string, data []byte) error {
	client, err := remote.NewClient(p.config.CollectorURL)
	if err != nil {
		return err
	}
	return client.PushTrace(ctx, p.RunID(), name, data)
}

func (p *Profiler) notify(ctx context.Context, name string, records int) error {
	writer := shipper.NewWriter(p.config.KafkaBrokers, p.config.KafkaTopic)
	message, err := shipper.GenerateKafkaMessage(shipper.RunEvent{
		RunID:     p.RunID(),
		TraceName: name,
		Rank:      p.config.Rank,
		Records:   records,
		Received:  timeutil.Time(time.Now().UTC()),
	})
	if err != nil {
		writer.Close()
		return err
	}
	if err := writer.WriteMessages(ctx, message); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
