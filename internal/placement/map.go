package placement

// ObjectToGroup hashes an object name into [0, Groups). It depends only
// on the object's bytes and the map's group count, never on the tree
// shape — so rebalancing the tree can never move an object between
// groups; only changing Groups can.
func (m *StorageMap) ObjectToGroup(id ObjectId) GroupId {
	h := ObjectHash(id)
	return GroupId(h % m.Groups)
}

// GroupToDevices returns the devices handling the given group, in
// order (primary first). It returns at most replicas distinct devices:
// exactly min(replicas, reachable leaves respecting NeverRepeat).
// Exhausting NeverRepeat children is not an error; the replica set is
// simply shorter than requested.
func (m *StorageMap) GroupToDevices(group GroupId, replicas int) []DeviceId {
	devices := make([]DeviceId, 0, replicas)
	picked := make(map[pickedKey]struct{})
	for i := 0; i < replicas; i++ {
		device, ok := computeLocation(m.Root, group, uint32(i), 0, picked)
		if !ok {
			break
		}
		devices = append(devices, device)
	}
	return devices
}

// pickedKey identifies a (bucket, child index) pair already consumed by
// an earlier replica under NeverRepeat.
type pickedKey struct {
	bucketID uint32
	index    uint32
}

// computeLocation walks node for the given (group, replica), returning
// the device it resolves to. picked accumulates (bucket id, child
// index) pairs across replica calls so NeverRepeat buckets can refuse
// to repeat a child.
func computeLocation(node Node, group GroupId, replica, level uint32, picked map[pickedKey]struct{}) (DeviceId, bool) {
	if node.IsDevice() {
		return *node.Device, true
	}
	bucket := node.Bucket

	attempt := uint32(0)
	for {
		if bucket.PickMode == NeverRepeat {
			allPicked := true
			for i := range bucket.Children {
				if _, ok := picked[pickedKey{bucket.Id, uint32(i)}]; !ok {
					allPicked = false
					break
				}
			}
			if allPicked {
				return DeviceId{}, false
			}
		}

		index := computeLocationInBucket(bucket, group, replica, level, attempt)

		if bucket.PickMode == NeverRepeat {
			key := pickedKey{bucket.Id, uint32(index)}
			if _, already := picked[key]; already {
				attempt++
				continue
			}
			picked[key] = struct{}{}
		}

		if device, ok := computeLocation(bucket.Children[index].Node, group, replica, level+1, picked); ok {
			return device, true
		}
		attempt++
	}
}

// computeLocationInBucket selects a child index according to the
// bucket's algorithm.
func computeLocationInBucket(bucket *Bucket, group GroupId, replica, level, attempt uint32) int {
	children := bucket.Children
	switch bucket.Algorithm.Kind {
	case Uniform:
		h := mixHash(level, group, replica, attempt, 0)
		return int(h) % len(children)

	case List:
		var total uint32
		for _, c := range children {
			total += c.Weight
		}
		h := mixHash(level, group, replica, attempt, 0) % total
		for i := 0; i < len(children)-1; i++ {
			if h < children[i].Weight {
				return i
			}
			h -= children[i].Weight
		}
		return len(children) - 1

	case Straw:
		factors := bucket.Algorithm.Factors
		best := 0
		bestStraw := drawStraw(group, replica, level, attempt, 0, factors[0])
		for i := 1; i < len(children); i++ {
			straw := drawStraw(group, replica, level, attempt, uint32(i), factors[i])
			if straw > bestStraw {
				best = i
				bestStraw = straw
			}
		}
		return best

	case Fallback:
		return int(attempt)

	default:
		panic("placement: unknown algorithm kind")
	}
}

func drawStraw(group GroupId, replica, level, attempt, index, factor uint32) uint32 {
	h := mixHash(level, group, replica, attempt, index)
	return h % factor
}
