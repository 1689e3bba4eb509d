package der

// Cursor walks the elements of one constructed value in order. It never
// recurses on its own; Sequence, Set and Explicit return a new Cursor over
// the child content.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a cursor over data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Empty reports whether all elements have been consumed.
func (c *Cursor) Empty() bool {
	return c.off >= len(c.data)
}

// Offset returns the position of the next element within the cursor's data.
func (c *Cursor) Offset() int {
	return c.off
}

// Next decodes and consumes the next element.
func (c *Cursor) Next() (Node, error) {
	n, next, err := ReadNext(c.data, c.off)
	if err != nil {
		return Node{}, err
	}
	c.off = next
	return n, nil
}

// Peek decodes the next element without consuming it.
func (c *Cursor) Peek() (Node, error) {
	n, _, err := ReadNext(c.data, c.off)
	return n, err
}

// PeekIs reports whether the next element exists and has the given identifier.
func (c *Cursor) PeekIs(class Class, constructed bool, tag uint32) bool {
	if c.Empty() {
		return false
	}
	n, err := c.Peek()
	return err == nil && n.Is(class, constructed, tag)
}

// Expect consumes the next element and fails with KindUnexpectedTag unless it
// has the given identifier.
func (c *Cursor) Expect(class Class, constructed bool, tag uint32) (Node, error) {
	want := describe(class, constructed, tag)
	if c.Empty() {
		return Node{}, Errorf(KindUnexpectedTag, "expected %s, found end of content", want)
	}
	n, err := c.Peek()
	if err != nil {
		return Node{}, err
	}
	if !n.Is(class, constructed, tag) {
		return Node{}, Errorf(KindUnexpectedTag, "expected %s, found %s", want, n)
	}
	return c.Next()
}

// Optional consumes the next element only when it has the given identifier.
func (c *Cursor) Optional(class Class, constructed bool, tag uint32) (Node, bool, error) {
	if c.Empty() {
		return Node{}, false, nil
	}
	n, err := c.Peek()
	if err != nil {
		return Node{}, false, err
	}
	if !n.Is(class, constructed, tag) {
		return Node{}, false, nil
	}
	n, err = c.Next()
	return n, err == nil, err
}

// Sequence consumes a SEQUENCE and returns a cursor over its elements.
func (c *Cursor) Sequence() (*Cursor, error) {
	n, err := c.Expect(ClassUniversal, true, TagSequence)
	if err != nil {
		return nil, err
	}
	return NewCursor(n.Content), nil
}

// Set consumes a SET and returns a cursor over its elements.
func (c *Cursor) Set() (*Cursor, error) {
	n, err := c.Expect(ClassUniversal, true, TagSet)
	if err != nil {
		return nil, err
	}
	return NewCursor(n.Content), nil
}

// Explicit consumes a constructed context-specific [tag] and returns a cursor
// over the wrapped content.
func (c *Cursor) Explicit(tag uint32) (*Cursor, error) {
	n, err := c.Expect(ClassContextSpecific, true, tag)
	if err != nil {
		return nil, err
	}
	return NewCursor(n.Content), nil
}

// Skip consumes the next element whatever it is.
func (c *Cursor) Skip() error {
	_, err := c.Next()
	return err
}

// Finish fails when unconsumed elements remain.
func (c *Cursor) Finish() error {
	if c.Empty() {
		return nil
	}
	return Errorf(KindMalformedEncoding, "%d trailing bytes", len(c.data)-c.off)
}

func (c *Cursor) primitive(tag uint32) (Node, error) {
	if !c.Empty() {
		if n, err := c.Peek(); err == nil && n.Is(ClassUniversal, true, tag) {
			return Node{}, Errorf(KindUnsupportedEncoding, "constructed %s", describe(ClassUniversal, false, tag))
		}
	}
	return c.Expect(ClassUniversal, false, tag)
}

// ReadInteger consumes an INTEGER and returns its content octets, borrowed.
func (c *Cursor) ReadInteger() ([]byte, error) {
	n, err := c.primitive(TagInteger)
	if err != nil {
		return nil, err
	}
	return ParseInteger(n.Content)
}

// ReadBoolean consumes a BOOLEAN.
func (c *Cursor) ReadBoolean() (bool, error) {
	n, err := c.primitive(TagBoolean)
	if err != nil {
		return false, err
	}
	return ParseBoolean(n.Content)
}

// ReadBitString consumes a BIT STRING.
func (c *Cursor) ReadBitString() (BitString, error) {
	n, err := c.primitive(TagBitString)
	if err != nil {
		return BitString{}, err
	}
	return ParseBitString(n.Content)
}

// ReadOctetString consumes an OCTET STRING and returns its content, borrowed.
func (c *Cursor) ReadOctetString() ([]byte, error) {
	n, err := c.primitive(TagOctetString)
	if err != nil {
		return nil, err
	}
	return n.Content, nil
}

// ReadObjectIdentifier consumes an OBJECT IDENTIFIER.
func (c *Cursor) ReadObjectIdentifier() (ObjectIdentifier, error) {
	n, err := c.primitive(TagOID)
	if err != nil {
		return nil, err
	}
	return ParseObjectIdentifier(n.Content)
}

// ReadTime consumes a Time CHOICE (UTCTime or GeneralizedTime) and returns
// Unix epoch seconds.
func (c *Cursor) ReadTime() (int64, error) {
	if c.Empty() {
		return 0, Errorf(KindUnexpectedTag, "expected UTCTime or GeneralizedTime, found end of content")
	}
	n, err := c.Peek()
	if err != nil {
		return 0, err
	}
	switch {
	case n.Is(ClassUniversal, false, TagUTCTime):
		c.off += n.Len()
		return ParseUTCTime(n.Content)
	case n.Is(ClassUniversal, false, TagGeneralizedTime):
		c.off += n.Len()
		return ParseGeneralizedTime(n.Content)
	}
	return 0, Errorf(KindUnexpectedTag, "expected UTCTime or GeneralizedTime, found %s", n)
}

// ReadNull consumes a NULL.
func (c *Cursor) ReadNull() error {
	n, err := c.primitive(TagNull)
	if err != nil {
		return err
	}
	if len(n.Content) != 0 {
		return Errorf(KindMalformedEncoding, "NULL with %d content bytes", len(n.Content))
	}
	return nil
}
