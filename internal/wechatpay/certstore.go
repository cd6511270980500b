package wechatpay

import (
	"crypto/rsa"
	"sync"
)

// CertStore хранит публичные ключи платформенных сертификатов шлюза по их
// серийным номерам. Засеивается из конфигурации, может пополняться через
// Client.DownloadCertificates при ротации ключей шлюза.
type CertStore struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewCertStore() *CertStore {
	return &CertStore{keys: make(map[string]*rsa.PublicKey)}
}

func (s *CertStore) Add(serial string, key *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[serial] = key
}

// Get возвращает ключ по серийному номеру сертификата.
func (s *CertStore) Get(serial string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[serial]
	return key, ok
}

// Merge добавляет скачанные сертификаты к уже известным. Старые записи не
// удаляются: шлюз может какое-то время подписывать уведомления предыдущим
// сертификатом.
func (s *CertStore) Merge(keys map[string]*rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for serial, key := range keys {
		s.keys[serial] = key
	}
}

func (s *CertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
