package lock

func (l *MemoryLocker) Size() int { return l.size() }

var AdvisoryKey = advisoryKey
