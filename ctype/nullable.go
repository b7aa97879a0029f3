package ctype

// Nullable returns a view over a raw pointer to pointee in which the null
// address reads as Absent and every other address reads as Present with that
// exact address. Writing Absent stores the null address. Writing Present of
// a null pointer also stores null, which reads back as Absent.
func Nullable[T any](pointee Type[T]) Type[Optional[Ptr[T]]] {
	return View(Pointer(pointee), readOptPtr[T], writeOptPtr[T], Named(pointee.Name()+"*?"))
}

func readOptPtr[T any](p Ptr[T]) Optional[Ptr[T]] {
	if p.IsNull() {
		return Absent[Ptr[T]]()
	}
	return Present(p)
}

func writeOptPtr[T any](o Optional[Ptr[T]]) Ptr[T] {
	p, _ := o.Get()
	return p
}
